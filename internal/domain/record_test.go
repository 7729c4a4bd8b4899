package domain

import (
	"testing"
)

func sampleRecord() Record {
	return Record{
		SchemaVersion: SchemaVersion,
		EngagementID:  "eng-1",
		OperatorID:    "op-1",
		Sequence:      3,
		Timestamp:     "2026-01-02T03:04:05Z",
		Action:        "inventory",
		Authorization: "lead-bob",
		ResultHash:    "ae47918d3565867f",
		PrevChainHash: GenesisHash,
		ChainHash:     "d5572122b71bbe61224c3191451fc27620e933b9a039a91d22a2cd5928ebf2c4",
	}
}

func TestRecord_AsMapCarriesNullTaskID(t *testing.T) {
	m := sampleRecord().AsMap()
	v, ok := m["task_id"]
	if !ok {
		t.Fatal("task_id missing from map")
	}
	if v != nil {
		t.Errorf("task_id = %v, want nil", v)
	}
}

func TestRecord_AsMapOmitsEmptyChainHash(t *testing.T) {
	rec := sampleRecord()
	rec.ChainHash = ""
	if _, ok := rec.AsMap()["chain_hash"]; ok {
		t.Error("unset chain_hash should not appear in the hash input")
	}
}

func TestRecordFromMap_RoundTrip(t *testing.T) {
	rec := sampleRecord()
	taskID := "T-1"
	rec.TaskID = &taskID

	got, err := RecordFromMap(rec.AsMap())
	if err != nil {
		t.Fatalf("RecordFromMap: %v", err)
	}
	if got.Sequence != rec.Sequence {
		t.Errorf("Sequence = %d, want %d", got.Sequence, rec.Sequence)
	}
	if got.TaskID == nil || *got.TaskID != "T-1" {
		t.Errorf("TaskID = %v, want T-1", got.TaskID)
	}
	if got.ChainHash != rec.ChainHash {
		t.Errorf("ChainHash = %q, want %q", got.ChainHash, rec.ChainHash)
	}
}

func TestRecordFromMap_FloatSequence(t *testing.T) {
	m := sampleRecord().AsMap()
	m["sequence"] = float64(3) // how encoding/json delivers integers
	got, err := RecordFromMap(m)
	if err != nil {
		t.Fatalf("RecordFromMap: %v", err)
	}
	if got.Sequence != 3 {
		t.Errorf("Sequence = %d, want 3", got.Sequence)
	}
}

func TestRecordFromMap_MissingField(t *testing.T) {
	m := sampleRecord().AsMap()
	delete(m, "authorization")
	if _, err := RecordFromMap(m); err == nil {
		t.Error("expected error for missing authorization")
	}
}

func TestRecordFromMap_WrongType(t *testing.T) {
	m := sampleRecord().AsMap()
	m["action"] = 7
	if _, err := RecordFromMap(m); err == nil {
		t.Error("expected error for non-string action")
	}
}
