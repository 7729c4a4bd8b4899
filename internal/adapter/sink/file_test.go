package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"opsledger/internal/audit"
	"opsledger/internal/domain"
)

func TestFileSink_AppendAndReadChain(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")

	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	logger := audit.New("eng-1", "op-1")
	for i := 0; i < 3; i++ {
		rec, err := logger.LogEvent(context.Background(), "inventory",
			map[string]any{"host": i}, "lead-bob", nil)
		if err != nil {
			t.Fatalf("LogEvent: %v", err)
		}
		if err := s.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := ReadChain(path)
	if err != nil {
		t.Fatalf("ReadChain: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	if !audit.VerifyChain(records) {
		t.Error("chain read back from sink should verify")
	}
}

func TestFileSink_LargeSequenceVerifiesAfterReload(t *testing.T) {
	// Records written with a seven-digit sequence must hash identically when
	// read back; ReadChain may not hand the verifier a lossy numeric form.
	path := filepath.Join(t.TempDir(), "records.jsonl")
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	logger := audit.Resume("eng-1", "op-1", domain.GenesisHash, 999999)
	rec, err := logger.LogEvent(context.Background(), "inventory",
		map[string]any{"host": "web-1"}, "lead-bob", nil)
	if err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.Close()

	records, err := ReadChain(path)
	if err != nil {
		t.Fatalf("ReadChain: %v", err)
	}
	if !audit.VerifyChain(records) {
		t.Error("chain with sequence 1000000 should verify after reload")
	}
}

func TestFileSink_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer s.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestFileSink_TamperedFileFailsVerification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	s, err := NewFileSink(path)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	logger := audit.New("eng-1", "op-1")
	for i := 0; i < 2; i++ {
		rec, err := logger.LogEvent(context.Background(), "simulate_login",
			map[string]any{"attempt": i}, "lead-bob", nil)
		if err != nil {
			t.Fatalf("LogEvent: %v", err)
		}
		if err := s.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	s.Close()

	records, err := ReadChain(path)
	if err != nil {
		t.Fatalf("ReadChain: %v", err)
	}
	records[0]["action"] = "tampered"
	if audit.VerifyChain(records) {
		t.Error("edited evidence file should fail verification")
	}
}

func TestReadChain_MissingFile(t *testing.T) {
	if _, err := ReadChain(filepath.Join(t.TempDir(), "nope.jsonl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadChain_MalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	if err := os.WriteFile(path, []byte("{not json}\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadChain(path); err == nil {
		t.Error("expected error for malformed line")
	}
}
