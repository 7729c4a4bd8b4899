package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsledger/internal/audit"
	"opsledger/internal/domain"
)

// memoryStore implements domain.RecordStore over wire mappings.
type memoryStore struct {
	chains map[string][]map[string]any
}

func newMemoryStore() *memoryStore {
	return &memoryStore{chains: map[string][]map[string]any{}}
}

func (m *memoryStore) Append(_ context.Context, rec domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.chains[rec.EngagementID] = append(m.chains[rec.EngagementID], wire)
	return nil
}

func (m *memoryStore) Chain(_ context.Context, engagementID string) ([]map[string]any, error) {
	return m.chains[engagementID], nil
}

func (m *memoryStore) Engagements(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.chains))
	for id := range m.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memoryStore) Close() error { return nil }

func fillChain(t *testing.T, store domain.RecordStore, engagement string, n int) {
	t.Helper()
	logger := audit.New(engagement, "op-1")
	for i := 0; i < n; i++ {
		rec, err := logger.LogEvent(context.Background(), "emit_synthetic",
			map[string]any{"seq": i}, "lead-bob", nil)
		require.NoError(t, err)
		require.NoError(t, store.Append(context.Background(), rec))
	}
}

func TestIntegrityMonitor_SweepIntact(t *testing.T) {
	store := newMemoryStore()
	fillChain(t, store, "eng-a", 3)
	fillChain(t, store, "eng-b", 1)

	m := NewIntegrityMonitor(store, discardLogger(), "@every 1h")
	statuses, err := m.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	for _, st := range statuses {
		assert.True(t, st.Intact, "engagement %s", st.EngagementID)
		assert.Equal(t, -1, st.BreakIndex)
	}
}

func TestIntegrityMonitor_SweepFlagsTampering(t *testing.T) {
	store := newMemoryStore()
	fillChain(t, store, "eng-a", 3)
	fillChain(t, store, "eng-b", 3)
	store.chains["eng-b"][1]["authorization"] = "forged"

	m := NewIntegrityMonitor(store, discardLogger(), "@every 1h")
	statuses, err := m.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	byID := map[string]ChainStatus{}
	for _, st := range statuses {
		byID[st.EngagementID] = st
	}
	assert.True(t, byID["eng-a"].Intact)
	assert.False(t, byID["eng-b"].Intact)
	assert.Equal(t, 1, byID["eng-b"].BreakIndex)
}

func TestIntegrityMonitor_StartRejectsBadSchedule(t *testing.T) {
	m := NewIntegrityMonitor(newMemoryStore(), discardLogger(), "not a schedule")
	assert.Error(t, m.Start())
}

func TestIntegrityMonitor_StartStop(t *testing.T) {
	m := NewIntegrityMonitor(newMemoryStore(), discardLogger(), "@every 1h")
	require.NoError(t, m.Start())
	m.Stop()
}
