package domain

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store with per-document version stamps and
// first-committer-wins conflict detection: a transaction commits only if
// none of the documents it observed changed since its snapshot, mirroring
// the optimistic-concurrency contract of the real store.
type fakeStore struct {
	mu             sync.Mutex
	group          Group
	groupExists    bool
	groupVersion   int64
	members        map[string]Member
	memberVersions map[string]int64
	edges          []Edge

	// injectConflicts forces the next n transactions to abort with
	// ErrConflict before running, exercising guard retries.
	injectConflicts int

	putCount int
	commits  int
}

func newFakeStore(group Group, members ...Member) *fakeStore {
	s := &fakeStore{
		group:          group,
		groupExists:    group.ID != "",
		members:        make(map[string]Member, len(members)),
		memberVersions: make(map[string]int64, len(members)),
	}
	for _, m := range members {
		s.members[m.UserID] = m
		s.memberVersions[m.UserID] = 1
	}
	s.groupVersion = 1
	return s
}

type fakeTx struct {
	group        Group
	groupExists  bool
	groupVersion int64
	members      map[string]Member
	versions     map[string]int64

	putMembers map[string]Member
	putOrder   []string
	started    *startedWrite
	countDelta int
}

type startedWrite struct {
	at    time.Time
	edges []Edge
}

func (s *fakeStore) RunGroupUpdate(ctx context.Context, groupID string, fn func(ctx context.Context, tx TxView) error) error {
	s.mu.Lock()
	if s.injectConflicts > 0 {
		s.injectConflicts--
		s.mu.Unlock()
		return ErrConflict
	}
	tx := &fakeTx{
		group:        s.group,
		groupExists:  s.groupExists && s.group.ID == groupID,
		groupVersion: s.groupVersion,
		members:      make(map[string]Member, len(s.members)),
		versions:     make(map[string]int64, len(s.memberVersions)),
		putMembers:   make(map[string]Member),
	}
	for id, m := range s.members {
		tx.members[id] = m
		tx.versions[id] = s.memberVersions[id]
	}
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate the snapshot is still current before applying any write.
	if tx.groupVersion != s.groupVersion || len(tx.versions) != len(s.memberVersions) {
		return ErrConflict
	}
	for id, version := range tx.versions {
		if s.memberVersions[id] != version {
			return ErrConflict
		}
	}

	for _, id := range tx.putOrder {
		s.members[id] = tx.putMembers[id]
		s.memberVersions[id]++
		s.putCount++
	}
	groupChanged := false
	if tx.started != nil {
		at := tx.started.at
		s.group.Status = StatusStarted
		s.group.StartedAt = &at
		s.edges = append([]Edge(nil), tx.started.edges...)
		groupChanged = true
	}
	if tx.countDelta != 0 {
		s.group.PickedCount += tx.countDelta
		groupChanged = true
	}
	if groupChanged {
		s.groupVersion++
	}
	s.commits++
	return nil
}

func (s *fakeStore) member(userID string) Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[userID]
}

func (s *fakeStore) snapshotGroup() Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group
}

func (s *fakeStore) auditEdges() []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Edge(nil), s.edges...)
}

func (s *fakeStore) memberPuts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putCount
}

func (t *fakeTx) Group(ctx context.Context) (Group, error) {
	if !t.groupExists {
		return Group{}, ErrNotFound
	}
	return t.group, nil
}

func (t *fakeTx) Members(ctx context.Context) ([]Member, error) {
	members := make([]Member, 0, len(t.members))
	for _, m := range t.members {
		members = append(members, m)
	}
	return members, nil
}

func (t *fakeTx) Member(ctx context.Context, userID string) (Member, error) {
	m, ok := t.members[userID]
	if !ok {
		return Member{}, ErrNotFound
	}
	return m, nil
}

func (t *fakeTx) PutMember(ctx context.Context, member Member) error {
	if _, queued := t.putMembers[member.UserID]; !queued {
		t.putOrder = append(t.putOrder, member.UserID)
	}
	t.putMembers[member.UserID] = member
	return nil
}

func (t *fakeTx) StartGroup(ctx context.Context, startedAt time.Time, edges []Edge) error {
	t.started = &startedWrite{at: startedAt, edges: append([]Edge(nil), edges...)}
	return nil
}

func (t *fakeTx) IncrementPickedCount(ctx context.Context, delta int) error {
	t.countDelta += delta
	return nil
}

// recordingNotifier captures emitted events and can be made to fail.
type recordingNotifier struct {
	mu     sync.Mutex
	events []AssignmentEvent
	err    error
}

func (n *recordingNotifier) AssignmentAvailable(_ context.Context, event AssignmentEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) recorded() []AssignmentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]AssignmentEvent(nil), n.events...)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func fixedSeed(seed int64) func() (int64, error) {
	return func() (int64, error) { return seed, nil }
}

func pendingGroup(id, owner string, memberIDs ...string) Group {
	return Group{ID: id, OwnerID: owner, Status: StatusPending, MemberIDs: memberIDs}
}

func startedGroup(id, owner string, memberIDs ...string) Group {
	return Group{ID: id, OwnerID: owner, Status: StatusStarted, MemberIDs: memberIDs}
}

func blankMembers(groupID string, userIDs ...string) []Member {
	members := make([]Member, 0, len(userIDs))
	for _, userID := range userIDs {
		members = append(members, Member{GroupID: groupID, UserID: userID})
	}
	return members
}
