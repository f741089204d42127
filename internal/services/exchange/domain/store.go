package domain

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a group or member record was not found.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a transaction read a document that changed
	// before commit. The whole transaction is discarded; callers retry
	// from the first read.
	ErrConflict = errors.New("concurrent modification conflict")
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("exchange store is not configured")
)

// TxView is a transaction-scoped view over one group's documents.
//
// Reads observe a consistent snapshot. Writes take effect only if the
// update function returns nil and no document touched by the transaction
// changed concurrently; otherwise the store reports ErrConflict and no
// partial write becomes visible.
type TxView interface {
	// Group loads the group document.
	Group(ctx context.Context) (Group, error)
	// Members loads every member record of the group.
	Members(ctx context.Context) ([]Member, error)
	// Member loads one member record by participant id.
	Member(ctx context.Context, userID string) (Member, error)
	// PutMember stages an update of one member record.
	PutMember(ctx context.Context, member Member) error
	// StartGroup stages the pending→started transition together with the
	// draw audit edges.
	StartGroup(ctx context.Context, startedAt time.Time, edges []Edge) error
	// IncrementPickedCount stages an advisory picked-count bump.
	IncrementPickedCount(ctx context.Context, delta int) error
}

// Store is the domain persistence boundary. Implementations must provide
// atomic, serializable read-then-conditional-write transactions with
// conflict detection, which is the only cross-invocation synchronization
// primitive the core relies on.
type Store interface {
	RunGroupUpdate(ctx context.Context, groupID string, fn func(ctx context.Context, tx TxView) error) error
}
