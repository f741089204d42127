// Package sqlite provides SQLite-backed persistence for exchange state.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kringleapp/kringle/internal/platform/storage/sqlitemigrate"
	"github.com/kringleapp/kringle/internal/services/exchange/storage"
	"github.com/kringleapp/kringle/internal/services/exchange/storage/sqlite/migrations"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store provides SQLite-backed persistence for exchange state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	at := fromMillis(value.Int64)
	return &at
}

// Open opens an exchange SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateGroup persists a new group record.
func (s *Store) CreateGroup(ctx context.Context, record storage.GroupRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		return fmt.Errorf("group id is required")
	}
	if record.Status == "" {
		record.Status = "pending"
	}
	memberIDs, err := json.Marshal(record.MemberIDs)
	if err != nil {
		return fmt.Errorf("encode member ids: %w", err)
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO groups (id, owner_id, status, member_ids, picked_count, started_at, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
`, record.ID, record.OwnerID, record.Status, string(memberIDs), record.PickedCount,
		toNullMillis(record.StartedAt), toMillis(record.CreatedAt), toMillis(record.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// AddMember persists a new member record and appends the participant to
// the group's member list in one transaction.
func (s *Store) AddMember(ctx context.Context, record storage.MemberRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.GroupID = strings.TrimSpace(record.GroupID)
	record.UserID = strings.TrimSpace(record.UserID)
	if record.GroupID == "" || record.UserID == "" {
		return fmt.Errorf("group id and user id are required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add member: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	group, err := scanGroupRow(tx.QueryRowContext(ctx, selectGroupSQL, record.GroupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("load group: %w", err)
	}
	for _, id := range group.MemberIDs {
		if id == record.UserID {
			return fmt.Errorf("user %s is already a member of group %s", record.UserID, record.GroupID)
		}
	}
	memberIDs, err := json.Marshal(append(group.MemberIDs, record.UserID))
	if err != nil {
		return fmt.Errorf("encode member ids: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO group_members (group_id, user_id, assigned_to_user_id, has_picked, assigned_at, revealed_at, version, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
`, record.GroupID, record.UserID, record.AssignedToUserID, boolToInt(record.HasPicked),
		toNullMillis(record.AssignedAt), toNullMillis(record.RevealedAt),
		toMillis(record.CreatedAt), toMillis(record.UpdatedAt)); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
UPDATE groups SET member_ids = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?
`, string(memberIDs), toMillis(now), record.GroupID, group.Version)
	if err != nil {
		return fmt.Errorf("update group member list: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("update group member list: %w", err)
	} else if affected == 0 {
		return storage.ErrConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add member: %w", err)
	}
	return nil
}

// GetGroup loads one group record by id.
func (s *Store) GetGroup(ctx context.Context, groupID string) (storage.GroupRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.GroupRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.GroupRecord{}, fmt.Errorf("storage is not configured")
	}
	record, err := scanGroupRow(s.sqlDB.QueryRowContext(ctx, selectGroupSQL, strings.TrimSpace(groupID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.GroupRecord{}, storage.ErrNotFound
		}
		return storage.GroupRecord{}, fmt.Errorf("get group: %w", err)
	}
	return record, nil
}

// ListDrawEdges loads the audited draw edges for one group in draw order.
func (s *Store) ListDrawEdges(ctx context.Context, groupID string) ([]storage.EdgeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT group_id, position, giver_id, recipient_id FROM draw_edges WHERE group_id = ? ORDER BY position
`, strings.TrimSpace(groupID))
	if err != nil {
		return nil, fmt.Errorf("list draw edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []storage.EdgeRecord
	for rows.Next() {
		var edge storage.EdgeRecord
		if err := rows.Scan(&edge.GroupID, &edge.Position, &edge.GiverID, &edge.RecipientID); err != nil {
			return nil, fmt.Errorf("scan draw edge: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate draw edges: %w", err)
	}
	return edges, nil
}

// RunGroupUpdate executes fn inside one SQLite transaction over the
// group's documents. State-bearing UPDATEs are conditional on the version
// read in the same transaction; a lost version race and a driver
// busy/locked result both surface storage.ErrConflict and nothing is
// committed.
func (s *Store) RunGroupUpdate(ctx context.Context, groupID string, fn func(ctx context.Context, tx storage.GroupTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return fmt.Errorf("group id is required")
	}
	if fn == nil {
		return fmt.Errorf("update function is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin group update: %w", err)
	}

	gtx := &groupTx{
		tx:             tx,
		groupID:        groupID,
		memberVersions: make(map[string]int64),
	}
	if err := fn(ctx, gtx); err != nil {
		_ = tx.Rollback()
		if isBusyError(err) {
			return storage.ErrConflict
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		if isBusyError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("commit group update: %w", err)
	}
	return nil
}

// isBusyError reports whether err carries the driver's busy or locked
// result, raised when a concurrent transaction holds the write lock or
// invalidated this transaction's read snapshot. Both mean the same thing
// as a lost version race: discard the transaction and retry from the
// first read.
func isBusyError(err error) bool {
	var driverErr *sqlite.Error
	if !errors.As(err, &driverErr) {
		return false
	}
	switch driverErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

const selectGroupSQL = `
SELECT id, owner_id, status, member_ids, picked_count, started_at, version, created_at, updated_at
FROM groups WHERE id = ?
`

const selectMemberSQL = `
SELECT group_id, user_id, assigned_to_user_id, has_picked, assigned_at, revealed_at, version, created_at, updated_at
FROM group_members WHERE group_id = ?
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroupRow(row rowScanner) (storage.GroupRecord, error) {
	var record storage.GroupRecord
	var memberIDs string
	var startedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&record.ID, &record.OwnerID, &record.Status, &memberIDs,
		&record.PickedCount, &startedAt, &record.Version, &createdAt, &updatedAt); err != nil {
		return storage.GroupRecord{}, err
	}
	if err := json.Unmarshal([]byte(memberIDs), &record.MemberIDs); err != nil {
		return storage.GroupRecord{}, fmt.Errorf("decode member ids: %w", err)
	}
	record.StartedAt = fromNullMillis(startedAt)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanMemberRow(row rowScanner) (storage.MemberRecord, error) {
	var record storage.MemberRecord
	var hasPicked int
	var assignedAt, revealedAt sql.NullInt64
	var createdAt, updatedAt int64
	if err := row.Scan(&record.GroupID, &record.UserID, &record.AssignedToUserID, &hasPicked,
		&assignedAt, &revealedAt, &record.Version, &createdAt, &updatedAt); err != nil {
		return storage.MemberRecord{}, err
	}
	record.HasPicked = hasPicked != 0
	record.AssignedAt = fromNullMillis(assignedAt)
	record.RevealedAt = fromNullMillis(revealedAt)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// groupTx scopes reads and conditional writes to one group inside a
// transaction, tracking the versions observed by each read so writes can
// compare-and-swap against them.
type groupTx struct {
	tx             *sql.Tx
	groupID        string
	groupVersion   int64
	groupRead      bool
	memberVersions map[string]int64
}

func (t *groupTx) GetGroup(ctx context.Context) (storage.GroupRecord, error) {
	record, err := scanGroupRow(t.tx.QueryRowContext(ctx, selectGroupSQL, t.groupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.GroupRecord{}, storage.ErrNotFound
		}
		return storage.GroupRecord{}, fmt.Errorf("get group: %w", err)
	}
	t.groupVersion = record.Version
	t.groupRead = true
	return record, nil
}

func (t *groupTx) ListMembers(ctx context.Context) ([]storage.MemberRecord, error) {
	rows, err := t.tx.QueryContext(ctx, selectMemberSQL+" ORDER BY user_id", t.groupID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var members []storage.MemberRecord
	for rows.Next() {
		record, err := scanMemberRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		t.memberVersions[record.UserID] = record.Version
		members = append(members, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

func (t *groupTx) GetMember(ctx context.Context, userID string) (storage.MemberRecord, error) {
	record, err := scanMemberRow(t.tx.QueryRowContext(ctx, selectMemberSQL+" AND user_id = ?", t.groupID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.MemberRecord{}, storage.ErrNotFound
		}
		return storage.MemberRecord{}, fmt.Errorf("get member: %w", err)
	}
	t.memberVersions[record.UserID] = record.Version
	return record, nil
}

func (t *groupTx) PutMember(ctx context.Context, record storage.MemberRecord) error {
	version, read := t.memberVersions[record.UserID]
	if !read {
		return fmt.Errorf("member %s was not read in this transaction", record.UserID)
	}
	now := time.Now().UTC()
	result, err := t.tx.ExecContext(ctx, `
UPDATE group_members
SET assigned_to_user_id = ?, has_picked = ?, assigned_at = ?, revealed_at = ?, version = version + 1, updated_at = ?
WHERE group_id = ? AND user_id = ? AND version = ?
`, record.AssignedToUserID, boolToInt(record.HasPicked),
		toNullMillis(record.AssignedAt), toNullMillis(record.RevealedAt), toMillis(now),
		t.groupID, record.UserID, version)
	if err != nil {
		return fmt.Errorf("put member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("put member: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	t.memberVersions[record.UserID] = version + 1
	return nil
}

func (t *groupTx) StartGroup(ctx context.Context, startedAt time.Time, edges []storage.EdgeRecord) error {
	if !t.groupRead {
		return fmt.Errorf("group was not read in this transaction")
	}
	result, err := t.tx.ExecContext(ctx, `
UPDATE groups SET status = 'started', started_at = ?, version = version + 1, updated_at = ?
WHERE id = ? AND status = 'pending' AND version = ?
`, toMillis(startedAt), toMillis(startedAt), t.groupID, t.groupVersion)
	if err != nil {
		return fmt.Errorf("start group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("start group: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	t.groupVersion++

	for _, edge := range edges {
		if _, err := t.tx.ExecContext(ctx, `
INSERT INTO draw_edges (group_id, position, giver_id, recipient_id) VALUES (?, ?, ?, ?)
`, t.groupID, edge.Position, edge.GiverID, edge.RecipientID); err != nil {
			return fmt.Errorf("insert draw edge: %w", err)
		}
	}
	return nil
}

// IncrementPickedCount bumps the advisory counter without a version
// check. The count is never consulted for correctness decisions, so the
// bump stays independent of the group document's version stream and does
// not add conflicts of its own.
func (t *groupTx) IncrementPickedCount(ctx context.Context, delta int) error {
	if _, err := t.tx.ExecContext(ctx, `
UPDATE groups SET picked_count = picked_count + ?, updated_at = ? WHERE id = ?
`, delta, toMillis(time.Now().UTC()), t.groupID); err != nil {
		return fmt.Errorf("increment picked count: %w", err)
	}
	return nil
}
