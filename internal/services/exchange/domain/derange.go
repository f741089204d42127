package domain

import (
	"fmt"
	"math/rand"

	apperrors "github.com/kringleapp/kringle/internal/errors"
)

// MinMembers is the smallest group size that admits a derangement. With
// two participants the only fixed-point-free mapping is a swap, which the
// per-participant pull path cannot reach safely, and with one it does not
// exist at all.
const MinMembers = 3

// maxShuffleAttempts bounds rejection sampling in Derange. Rejection
// sampling accepts a uniform shuffle with probability approaching 1/e, so
// the expected attempt count is about 2.7 regardless of group size; the
// bound is a safety valve, not a typical path.
const maxShuffleAttempts = 1000

// Derange returns a uniformly random fixed-point-free bijection over ids.
//
// Every id appears exactly once as a giver and exactly once as a
// recipient, and no id maps to itself. The result is deterministic with
// respect to seed: the same ids in the same order with the same seed
// always produce the same edges.
//
// Derange has no side effects. It samples unbiased permutations with a
// Fisher-Yates shuffle and resamples on any fixed point; exhausting
// maxShuffleAttempts reports an internal generation failure that callers
// should surface for alerting rather than retry here.
func Derange(ids []string, seed int64) ([]Edge, error) {
	if len(ids) < MinMembers {
		return nil, apperrors.New(apperrors.CodeGroupTooSmall,
			fmt.Sprintf("a derangement needs at least %d members, got %d", MinMembers, len(ids)))
	}

	rng := rand.New(rand.NewSource(seed))
	recipients := make([]string, len(ids))
	copy(recipients, ids)

	for attempt := 0; attempt < maxShuffleAttempts; attempt++ {
		rng.Shuffle(len(recipients), func(i, j int) {
			recipients[i], recipients[j] = recipients[j], recipients[i]
		})
		if hasFixedPoint(ids, recipients) {
			continue
		}
		edges := make([]Edge, len(ids))
		for i, giver := range ids {
			edges[i] = Edge{GiverID: giver, RecipientID: recipients[i]}
		}
		return edges, nil
	}

	return nil, apperrors.New(apperrors.CodeDerangementExhausted,
		fmt.Sprintf("no derangement found after %d shuffle attempts", maxShuffleAttempts))
}

func hasFixedPoint(givers, recipients []string) bool {
	for i := range givers {
		if givers[i] == recipients[i] {
			return true
		}
	}
	return false
}
