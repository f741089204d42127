package app

import (
	"context"
	"errors"
	"time"

	"github.com/kringleapp/kringle/internal/services/exchange/domain"
	"github.com/kringleapp/kringle/internal/services/exchange/storage"
)

// domainStoreAdapter exposes a storage.GroupStore through the domain
// persistence boundary, translating records and sentinel errors.
type domainStoreAdapter struct {
	store storage.GroupStore
}

func newDomainStoreAdapter(store storage.GroupStore) *domainStoreAdapter {
	return &domainStoreAdapter{store: store}
}

// RunGroupUpdate implements domain.Store.
func (a *domainStoreAdapter) RunGroupUpdate(ctx context.Context, groupID string, fn func(ctx context.Context, tx domain.TxView) error) error {
	if a == nil || a.store == nil {
		return domain.ErrStoreNotConfigured
	}
	err := a.store.RunGroupUpdate(ctx, groupID, func(ctx context.Context, tx storage.GroupTx) error {
		return fn(ctx, &domainTxAdapter{tx: tx, groupID: groupID})
	})
	return mapStorageError(err)
}

type domainTxAdapter struct {
	tx      storage.GroupTx
	groupID string
}

func (t *domainTxAdapter) Group(ctx context.Context) (domain.Group, error) {
	record, err := t.tx.GetGroup(ctx)
	if err != nil {
		return domain.Group{}, mapStorageError(err)
	}
	return toDomainGroup(record), nil
}

func (t *domainTxAdapter) Members(ctx context.Context) ([]domain.Member, error) {
	records, err := t.tx.ListMembers(ctx)
	if err != nil {
		return nil, mapStorageError(err)
	}
	members := make([]domain.Member, 0, len(records))
	for _, record := range records {
		members = append(members, toDomainMember(record))
	}
	return members, nil
}

func (t *domainTxAdapter) Member(ctx context.Context, userID string) (domain.Member, error) {
	record, err := t.tx.GetMember(ctx, userID)
	if err != nil {
		return domain.Member{}, mapStorageError(err)
	}
	return toDomainMember(record), nil
}

func (t *domainTxAdapter) PutMember(ctx context.Context, member domain.Member) error {
	return mapStorageError(t.tx.PutMember(ctx, storage.MemberRecord{
		GroupID:          t.groupID,
		UserID:           member.UserID,
		AssignedToUserID: member.AssignedToUserID,
		HasPicked:        member.HasPicked,
		AssignedAt:       member.AssignedAt,
		RevealedAt:       member.RevealedAt,
	}))
}

func (t *domainTxAdapter) StartGroup(ctx context.Context, startedAt time.Time, edges []domain.Edge) error {
	records := make([]storage.EdgeRecord, 0, len(edges))
	for i, edge := range edges {
		records = append(records, storage.EdgeRecord{
			GroupID:     t.groupID,
			Position:    i,
			GiverID:     edge.GiverID,
			RecipientID: edge.RecipientID,
		})
	}
	return mapStorageError(t.tx.StartGroup(ctx, startedAt, records))
}

func (t *domainTxAdapter) IncrementPickedCount(ctx context.Context, delta int) error {
	return mapStorageError(t.tx.IncrementPickedCount(ctx, delta))
}

func toDomainGroup(record storage.GroupRecord) domain.Group {
	return domain.Group{
		ID:          record.ID,
		OwnerID:     record.OwnerID,
		Status:      domain.Status(record.Status),
		MemberIDs:   append([]string(nil), record.MemberIDs...),
		PickedCount: record.PickedCount,
		StartedAt:   record.StartedAt,
	}
}

func toDomainMember(record storage.MemberRecord) domain.Member {
	return domain.Member{
		GroupID:          record.GroupID,
		UserID:           record.UserID,
		AssignedToUserID: record.AssignedToUserID,
		HasPicked:        record.HasPicked,
		AssignedAt:       record.AssignedAt,
		RevealedAt:       record.RevealedAt,
	}
}

func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return domain.ErrConflict
	default:
		return err
	}
}
