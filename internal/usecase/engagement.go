// Package usecase wires the audit chain core to persistence, task approval,
// and scheduled integrity sweeps.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"opsledger/internal/audit"
	"opsledger/internal/domain"
	"opsledger/internal/infra/tracer"
)

// Session is the owned chain state for one engagement/operator pairing: one
// ChainLogger plus the sinks its records are persisted to. The core logger
// does no locking of its own, so Session serializes Record calls; use one
// Session per operator session.
type Session struct {
	mu     sync.Mutex
	logger *audit.ChainLogger
	sinks  []domain.RecordSink
	log    *slog.Logger
}

// NewSession creates a session whose records are appended to every sink.
func NewSession(engagementID, operatorID string, log *slog.Logger, sinks ...domain.RecordSink) *Session {
	return &Session{
		logger: audit.New(engagementID, operatorID),
		sinks:  sinks,
		log:    log,
	}
}

// ResumeSession reopens a session over an engagement's stored chain. The
// stored records are verified first; a chain that no longer verifies must
// not be extended, it must be reported.
func ResumeSession(ctx context.Context, store domain.RecordStore, engagementID, operatorID string, log *slog.Logger, extraSinks ...domain.RecordSink) (*Session, error) {
	records, err := store.Chain(ctx, engagementID)
	if err != nil {
		return nil, err
	}

	sinks := append([]domain.RecordSink{store}, extraSinks...)
	if len(records) == 0 {
		return NewSession(engagementID, operatorID, log, sinks...), nil
	}

	if idx := audit.FirstBreak(records); idx != -1 {
		return nil, domain.NewDomainError("ResumeSession", domain.ErrInvalidInput,
			fmt.Sprintf("stored chain for %s breaks at record %d; refusing to extend it", engagementID, idx+1))
	}

	last, err := domain.RecordFromMap(records[len(records)-1])
	if err != nil {
		return nil, err
	}
	return &Session{
		logger: audit.Resume(engagementID, operatorID, last.ChainHash, last.Sequence),
		sinks:  sinks,
		log:    log,
	}, nil
}

// ChainTip returns the current chain tip of this session.
func (s *Session) ChainTip() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger.ChainTip()
}

// Record logs one event onto the session's chain and persists the emitted
// record to every sink. Sink failures surface after the chain has advanced;
// the returned record is valid either way and the caller may re-persist it.
func (s *Session) Record(ctx context.Context, action string, result any, authorization string, taskID *string) (domain.Record, error) {
	ctx, span := tracer.StartSpan(ctx, "session.record")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.logger.LogEvent(ctx, action, result, authorization, taskID)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.Record{}, err
	}

	for _, sink := range s.sinks {
		if err := sink.Append(ctx, rec); err != nil {
			tracer.RecordError(span, err)
			s.log.Error("audit record not persisted",
				"engagement", rec.EngagementID,
				"sequence", rec.Sequence,
				"code", domain.ErrorCodeOf(err),
				"error", err)
			return rec, err
		}
	}

	s.log.Info("audit record appended",
		"engagement", rec.EngagementID,
		"action", action,
		"sequence", rec.Sequence,
		"chain_hash", rec.ChainHash)
	tracer.SetOK(span)
	return rec, nil
}

// RecordTask logs an event authorized by a signed task. The task's signature
// and TTL are checked first; the record's task_id and authorization are
// derived from the task rather than trusted from the caller.
func (s *Session) RecordTask(ctx context.Context, st *domain.SignedTask, action string, result any) (domain.Record, error) {
	if err := domain.VerifyTask(st, time.Now().UTC()); err != nil {
		return domain.Record{}, err
	}
	taskID := st.Task.ID
	return s.Record(ctx, action, result, st.Task.ApprovedBy, &taskID)
}
