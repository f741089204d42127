// Package storage defines the persistence boundary for exchange state.
//
// Records are version-stamped documents: every write is a compare-and-swap
// against the version observed inside the same transaction, which makes the
// "only one writer wins" contract explicit instead of incidental to the
// backing store's transaction feature.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a group or member record does not exist.
	ErrNotFound = errors.New("storage: record not found")
	// ErrConflict indicates a conditional write lost a version race; the
	// enclosing transaction must be discarded and retried from its first
	// read.
	ErrConflict = errors.New("storage: version conflict")
)

// GroupRecord is the stored form of one gift-exchange group.
type GroupRecord struct {
	ID          string
	OwnerID     string
	Status      string
	MemberIDs   []string
	PickedCount int
	StartedAt   *time.Time
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MemberRecord is the stored form of one participant's assignment state.
type MemberRecord struct {
	GroupID          string
	UserID           string
	AssignedToUserID string
	HasPicked        bool
	AssignedAt       *time.Time
	RevealedAt       *time.Time
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EdgeRecord is one audited giver-to-recipient draw edge.
type EdgeRecord struct {
	GroupID     string
	Position    int
	GiverID     string
	RecipientID string
}

// GroupTx is the transaction-scoped contract over one group's documents.
// Writes are conditional on the versions read earlier in the same
// transaction and either all take effect or none do.
type GroupTx interface {
	GetGroup(ctx context.Context) (GroupRecord, error)
	ListMembers(ctx context.Context) ([]MemberRecord, error)
	GetMember(ctx context.Context, userID string) (MemberRecord, error)
	PutMember(ctx context.Context, record MemberRecord) error
	StartGroup(ctx context.Context, startedAt time.Time, edges []EdgeRecord) error
	// IncrementPickedCount bumps the advisory disclosed-assignment
	// counter. The counter is never read for correctness decisions, so
	// the bump is not version-checked.
	IncrementPickedCount(ctx context.Context, delta int) error
}

// GroupStore runs transactional updates over group state and exposes the
// record lifecycle hooks used by the (out-of-scope) membership collaborator.
type GroupStore interface {
	RunGroupUpdate(ctx context.Context, groupID string, fn func(ctx context.Context, tx GroupTx) error) error

	CreateGroup(ctx context.Context, record GroupRecord) error
	AddMember(ctx context.Context, record MemberRecord) error
	GetGroup(ctx context.Context, groupID string) (GroupRecord, error)
	ListDrawEdges(ctx context.Context, groupID string) ([]EdgeRecord, error)
}
