package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	// SchemaVersion is the wire schema version stamped on every record.
	SchemaVersion = "1.0"

	// GenesisHash is the prev_chain_hash of the first record in a chain.
	GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

	// RecordTimeFormat renders timestamps as UTC with second precision
	// and a literal Z suffix, e.g. "2024-01-01T00:00:00Z".
	RecordTimeFormat = "2006-01-02T15:04:05Z"
)

// Record is one link of a tamper-evident audit chain. Records are immutable
// once emitted; chain_hash covers every other field, and prev_chain_hash
// points at the predecessor's chain_hash (GenesisHash for the first record).
type Record struct {
	SchemaVersion string  `json:"schema_version"`
	EngagementID  string  `json:"engagement_id"`
	OperatorID    string  `json:"operator_id"`
	Sequence      int64   `json:"sequence"`
	Timestamp     string  `json:"timestamp"`
	Action        string  `json:"action"`
	TaskID        *string `json:"task_id"`
	Authorization string  `json:"authorization"`
	ResultHash    string  `json:"result_hash"`
	PrevChainHash string  `json:"prev_chain_hash"`
	ChainHash     string  `json:"chain_hash"`
}

// AsMap returns the record's wire representation as a mapping. A missing
// task_id is carried as an explicit null so the canonical encoding of a
// record is identical whether it came from the logger or from storage.
func (r Record) AsMap() map[string]any {
	m := map[string]any{
		"schema_version":  r.SchemaVersion,
		"engagement_id":   r.EngagementID,
		"operator_id":     r.OperatorID,
		"sequence":        r.Sequence,
		"timestamp":       r.Timestamp,
		"action":          r.Action,
		"authorization":   r.Authorization,
		"result_hash":     r.ResultHash,
		"prev_chain_hash": r.PrevChainHash,
	}
	if r.TaskID != nil {
		m["task_id"] = *r.TaskID
	} else {
		m["task_id"] = nil
	}
	if r.ChainHash != "" {
		m["chain_hash"] = r.ChainHash
	}
	return m
}

// RecordFromMap rebuilds a Record from a wire mapping, e.g. one decoded from
// JSONL storage. Numeric sequence values arrive as json.Number or float64
// depending on how the caller decoded them.
func RecordFromMap(m map[string]any) (Record, error) {
	var r Record
	str := func(key string) (string, error) {
		v, ok := m[key]
		if !ok {
			return "", fmt.Errorf("missing field %q", key)
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("field %q is %T, want string", key, v)
		}
		return s, nil
	}

	var err error
	if r.SchemaVersion, err = str("schema_version"); err != nil {
		return Record{}, err
	}
	if r.EngagementID, err = str("engagement_id"); err != nil {
		return Record{}, err
	}
	if r.OperatorID, err = str("operator_id"); err != nil {
		return Record{}, err
	}
	if r.Timestamp, err = str("timestamp"); err != nil {
		return Record{}, err
	}
	if r.Action, err = str("action"); err != nil {
		return Record{}, err
	}
	if r.Authorization, err = str("authorization"); err != nil {
		return Record{}, err
	}
	if r.ResultHash, err = str("result_hash"); err != nil {
		return Record{}, err
	}
	if r.PrevChainHash, err = str("prev_chain_hash"); err != nil {
		return Record{}, err
	}
	if r.ChainHash, err = str("chain_hash"); err != nil {
		return Record{}, err
	}

	switch seq := m["sequence"].(type) {
	case int64:
		r.Sequence = seq
	case int:
		r.Sequence = int64(seq)
	case float64:
		r.Sequence = int64(seq)
	case json.Number:
		r.Sequence, err = seq.Int64()
		if err != nil {
			return Record{}, fmt.Errorf("field %q: %w", "sequence", err)
		}
	default:
		return Record{}, fmt.Errorf("field %q is %T, want integer", "sequence", m["sequence"])
	}

	if v, ok := m["task_id"]; ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return Record{}, fmt.Errorf("field %q is %T, want string or null", "task_id", v)
		}
		r.TaskID = &s
	}
	return r, nil
}

// RecordSink persists emitted records. The chain core performs no I/O itself;
// callers own persistence of the records it returns.
type RecordSink interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// RecordStore persists records and can replay a stored chain in order for
// re-verification.
type RecordStore interface {
	RecordSink
	// Chain returns the stored records of one engagement in sequence order,
	// as wire mappings suitable for chain verification.
	Chain(ctx context.Context, engagementID string) ([]map[string]any, error)
	// Engagements lists the engagement IDs that have stored records.
	Engagements(ctx context.Context) ([]string, error)
}
