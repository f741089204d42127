package domain

import "time"

// Status is the lifecycle state of a group. The only legal transition is
// StatusPending to StatusStarted.
type Status string

const (
	// StatusPending means the group is gathering members; no draw yet.
	StatusPending Status = "pending"
	// StatusStarted means the draw has begun and membership is frozen.
	StatusStarted Status = "started"
)

// Group is one gift-exchange group.
type Group struct {
	ID      string
	OwnerID string
	Status  Status
	// MemberIDs is the ordered, duplicate-free participant set.
	MemberIDs []string
	// PickedCount is an advisory aggregate of disclosed assignments. It is
	// never consulted for correctness decisions.
	PickedCount int
	StartedAt   *time.Time
}

// HasMember reports whether userID belongs to the group.
func (g Group) HasMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Member is one participant's assignment record within a group.
type Member struct {
	GroupID string
	UserID  string
	// AssignedToUserID is the recipient this member gives to. Empty means
	// no assignment has been generated yet.
	AssignedToUserID string
	// HasPicked records that the assignment has been disclosed to the
	// participant. It transitions false to true exactly once.
	HasPicked  bool
	AssignedAt *time.Time
	RevealedAt *time.Time
}

// Edge is one giver-to-recipient assignment, kept as the draw audit trail.
type Edge struct {
	GiverID     string
	RecipientID string
}
