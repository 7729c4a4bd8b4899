package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"opsledger/internal/domain"
)

// resultHashLen is the truncated length of result commitments. Chain hashes
// keep the full 64-hex digest; result hashes carry the first 16 hex
// characters only, a wire-compatibility constant inherited from schema 1.0.
const resultHashLen = 16

// ChainLogger emits hash-chained audit records for one engagement/operator
// session. It owns the chain tip and sequence counter for that session and
// performs no I/O; callers persist the returned records.
//
// A ChainLogger is not safe for concurrent use: LogEvent reads and advances
// the tip and counter as one logical unit. Use one instance per session or
// serialize calls externally.
type ChainLogger struct {
	engagementID string
	operatorID   string
	chainTip     string
	sequence     int64
	now          func() time.Time
}

// New creates a ChainLogger whose first record will link to the genesis hash.
func New(engagementID, operatorID string) *ChainLogger {
	return Resume(engagementID, operatorID, domain.GenesisHash, 0)
}

// Resume reconstructs a logger positioned after an already-stored chain: the
// next record links to chainTip and carries lastSequence+1. Callers should
// verify the stored chain before resuming it; Resume trusts its arguments.
func Resume(engagementID, operatorID, chainTip string, lastSequence int64) *ChainLogger {
	return &ChainLogger{
		engagementID: engagementID,
		operatorID:   operatorID,
		chainTip:     chainTip,
		sequence:     lastSequence,
		now:          time.Now,
	}
}

// EngagementID returns the immutable engagement identity of this session.
func (l *ChainLogger) EngagementID() string { return l.engagementID }

// OperatorID returns the immutable operator identity of this session.
func (l *ChainLogger) OperatorID() string { return l.operatorID }

// ChainTip returns the chain_hash of the most recently emitted record, or
// the genesis hash if nothing has been logged yet.
func (l *ChainLogger) ChainTip() string { return l.chainTip }

// LogEvent appends one event to the chain and returns the complete record.
// The result payload is committed as a truncated hash, never stored verbatim.
// A nil taskID is carried on the wire as an explicit null.
//
// The only failure mode is a result payload the canonical encoder rejects;
// in that case the chain state is left untouched and no sequence number is
// consumed.
func (l *ChainLogger) LogEvent(ctx context.Context, action string, result any, authorization string, taskID *string) (domain.Record, error) {
	resultHash, err := HashResult(result)
	if err != nil {
		return domain.Record{}, err
	}

	rec := domain.Record{
		SchemaVersion: domain.SchemaVersion,
		EngagementID:  l.engagementID,
		OperatorID:    l.operatorID,
		Sequence:      l.sequence + 1,
		Timestamp:     l.now().UTC().Format(domain.RecordTimeFormat),
		Action:        action,
		TaskID:        taskID,
		Authorization: authorization,
		ResultHash:    resultHash,
		PrevChainHash: l.chainTip,
	}

	// Two-phase construction: hash every field except chain_hash, then
	// attach the digest.
	chainHash, err := hashCanonical(rec.AsMap())
	if err != nil {
		return domain.Record{}, err
	}
	rec.ChainHash = chainHash

	l.sequence++
	l.chainTip = chainHash

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("audit.chain_append", trace.WithAttributes(
			attribute.String("audit.engagement_id", l.engagementID),
			attribute.String("audit.action", action),
			attribute.String("audit.sequence", strconv.FormatInt(rec.Sequence, 10)),
			attribute.String("audit.chain_hash", chainHash),
		))
	}

	return rec, nil
}

// HashResult returns the truncated result commitment for a payload: the
// first 16 hex characters of the SHA-256 digest over the canonical encoding
// of {"result": payload}. Wrapping in a single-key container disambiguates
// top-level scalars and lists from object-shaped payloads. The commitment
// depends only on the payload, so identical payloads hash identically across
// sessions.
func HashResult(result any) (string, error) {
	digest, err := hashCanonical(map[string]any{"result": result})
	if err != nil {
		return "", err
	}
	return digest[:resultHashLen], nil
}

// hashCanonical returns the full SHA-256 hex digest of v's canonical encoding.
func hashCanonical(v any) (string, error) {
	data, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
