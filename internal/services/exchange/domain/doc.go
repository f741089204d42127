// Package domain implements the gift-exchange assignment core: generating
// a fixed-point-free bijection (derangement) over a group's members and
// committing it against shared transactional state without ever violating
// the no-self-assignment and unique-recipient invariants under concurrent
// access.
//
// Two assignment strategies exist. StartDraw is the authoritative one: it
// deranges the whole group in a single atomic commit, guarded by the
// group's one-way pending→started transition. PullAssignment is the
// on-demand fallback for groups that assign per participant after start;
// it relies on transactional retry and, when the unassigned remainder
// shrinks to the critical threshold, on a deterministic rotation that
// closes out the whole remainder at once. Reveal discloses a participant's
// already-computed assignment exactly once, idempotently.
package domain
