package audit

import "opsledger/internal/domain"

// VerifyChain reports whether an ordered sequence of record mappings forms an
// intact hash chain. It is a pure function: no logger state is consulted, and
// records may come straight from storage or transport. An empty sequence is
// vacuously valid.
//
// Any break — a missing chain_hash or prev_chain_hash field, a link that does
// not point at its predecessor's chain_hash, a chain_hash that does not match
// recomputation, or a record whose fields cannot be canonically encoded —
// makes the chain invalid. Malformed records are an expected adversarial
// input, not a crash.
func VerifyChain(records []map[string]any) bool {
	return FirstBreak(records) == intactChain
}

// intactChain is the FirstBreak result for a chain with no breaks.
const intactChain = -1

// FirstBreak returns the index of the first record at which the chain breaks,
// or -1 if the chain is intact.
func FirstBreak(records []map[string]any) int {
	expectedPrev := domain.GenesisHash
	for i, rec := range records {
		chainHash, ok := rec["chain_hash"].(string)
		if !ok {
			return i
		}
		prev, ok := rec["prev_chain_hash"].(string)
		if !ok {
			return i
		}
		if prev != expectedPrev {
			return i
		}

		// Recompute the hash over every field except chain_hash itself,
		// exactly as stored.
		stripped := make(map[string]any, len(rec))
		for k, v := range rec {
			if k != "chain_hash" {
				stripped[k] = v
			}
		}
		recomputed, err := hashCanonical(stripped)
		if err != nil || recomputed != chainHash {
			return i
		}

		expectedPrev = chainHash
	}
	return intactChain
}

// VerifyRecords is a convenience wrapper over VerifyChain for records still
// held as domain.Record values.
func VerifyRecords(records []domain.Record) bool {
	maps := make([]map[string]any, len(records))
	for i, r := range records {
		maps[i] = r.AsMap()
	}
	return VerifyChain(maps)
}
