package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"opsledger/internal/audit"
	"opsledger/internal/domain"
	"opsledger/internal/infra/tracer"
)

// ChainStatus is the sweep result for one stored engagement chain.
type ChainStatus struct {
	EngagementID string
	Records      int
	Intact       bool
	BreakIndex   int // index of the first broken record; -1 when intact
}

// IntegrityMonitor periodically replays every stored engagement chain and
// re-verifies it. The chain core only makes tampering detectable; the monitor
// is what actually looks.
type IntegrityMonitor struct {
	store    domain.RecordStore
	log      *slog.Logger
	schedule string
	cron     *cron.Cron
}

// NewIntegrityMonitor creates a monitor that sweeps on the given cron
// schedule (standard 5-field spec or @every syntax).
func NewIntegrityMonitor(store domain.RecordStore, log *slog.Logger, schedule string) *IntegrityMonitor {
	return &IntegrityMonitor{
		store:    store,
		log:      log,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start schedules the sweep and begins the cron loop.
func (m *IntegrityMonitor) Start() error {
	_, err := m.cron.AddFunc(m.schedule, func() {
		if _, err := m.Sweep(context.Background()); err != nil {
			m.log.Error("integrity sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule integrity sweep: %w", err)
	}
	m.cron.Start()
	m.log.Info("integrity monitor started", "schedule", m.schedule)
	return nil
}

// Stop halts the cron loop, waiting for a running sweep to finish.
func (m *IntegrityMonitor) Stop() {
	<-m.cron.Stop().Done()
}

// Sweep verifies every stored engagement chain once and returns per-chain
// status. A broken chain is a finding, not an error; errors are reserved for
// storage failures.
func (m *IntegrityMonitor) Sweep(ctx context.Context) ([]ChainStatus, error) {
	ctx, span := tracer.StartSpan(ctx, "monitor.sweep")
	defer span.End()

	engagements, err := m.store.Engagements(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	statuses := make([]ChainStatus, 0, len(engagements))
	for _, id := range engagements {
		records, err := m.store.Chain(ctx, id)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}

		breakIndex := audit.FirstBreak(records)
		status := ChainStatus{
			EngagementID: id,
			Records:      len(records),
			Intact:       breakIndex == -1,
			BreakIndex:   breakIndex,
		}
		statuses = append(statuses, status)

		if status.Intact {
			m.log.Info("chain intact", "engagement", id, "records", status.Records)
		} else {
			m.log.Error("chain integrity break detected",
				"engagement", id,
				"records", status.Records,
				"break_index", breakIndex)
		}
	}

	tracer.SetOK(span)
	return statuses, nil
}
