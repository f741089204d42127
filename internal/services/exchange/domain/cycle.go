package domain

import (
	"fmt"
	"sort"

	apperrors "github.com/kringleapp/kringle/internal/errors"
)

// CriticalCycleThreshold is the unassigned-remainder size at or below
// which PullAssignment stops picking independently at random and closes
// out the entire remainder with a deterministic rotation. Below four
// remaining participants, independent random picks have a non-negligible
// probability of cornering the group into a state where the last
// participant can only receive itself; the rotation makes that state
// unreachable.
const CriticalCycleThreshold = 3

// minCycleSize is the smallest remainder the rotation can resolve. A
// remainder of one without a recipient means the threshold failed to
// fire, which is an invariant violation, not a request error.
const minCycleSize = 2

// RotationCycle deterministically assigns the remaining unassigned givers
// to the remaining unclaimed recipients, producing a fixed-point-free
// sub-assignment that covers both sets exactly.
//
// Both inputs are sorted and the recipient list is rotated until no giver
// maps to itself. At least one of the len(givers) rotations is fixed-point
// free whenever len(givers) >= 2: each giver value occurs in at most one
// recipient position, so the fixed points summed across all rotations
// cannot exceed the rotation count, and only identical sets reach that
// bound, in which case every rotation other than zero is clean.
func RotationCycle(givers, recipients []string) ([]Edge, error) {
	if len(givers) != len(recipients) {
		return nil, apperrors.New(apperrors.CodeCriticalCycleViolation,
			fmt.Sprintf("unassigned givers (%d) and unclaimed recipients (%d) must pair up", len(givers), len(recipients)))
	}
	if len(givers) < minCycleSize {
		return nil, apperrors.New(apperrors.CodeCriticalCycleViolation,
			fmt.Sprintf("critical cycle needs at least %d unassigned members, got %d", minCycleSize, len(givers)))
	}

	sortedGivers := append([]string(nil), givers...)
	sortedRecipients := append([]string(nil), recipients...)
	sort.Strings(sortedGivers)
	sort.Strings(sortedRecipients)

	n := len(sortedGivers)
	for offset := 1; offset <= n; offset++ {
		rotation := offset % n
		clean := true
		for i := 0; i < n; i++ {
			if sortedGivers[i] == sortedRecipients[(i+rotation)%n] {
				clean = false
				break
			}
		}
		if !clean {
			continue
		}
		edges := make([]Edge, n)
		for i := 0; i < n; i++ {
			edges[i] = Edge{GiverID: sortedGivers[i], RecipientID: sortedRecipients[(i+rotation)%n]}
		}
		return edges, nil
	}

	return nil, apperrors.New(apperrors.CodeCriticalCycleViolation,
		"no fixed-point-free rotation covers the unassigned remainder")
}
