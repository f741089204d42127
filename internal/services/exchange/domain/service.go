package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	apperrors "github.com/kringleapp/kringle/internal/errors"
	"github.com/kringleapp/kringle/internal/platform/random"
)

// Service orchestrates group draws, per-participant pulls, and one-time
// reveals over the transactional store.
type Service struct {
	store    Store
	notifier Notifier
	clock    func() time.Time
	newSeed  func() (int64, error)
}

// NewService constructs the exchange assignment use-cases. A nil notifier
// disables emission; nil clock and seed sources fall back to time.Now and
// a crypto-backed seed per invocation.
func NewService(store Store, notifier Notifier, clock func() time.Time, newSeed func() (int64, error)) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if clock == nil {
		clock = time.Now
	}
	if newSeed == nil {
		newSeed = random.NewSeed
	}
	return &Service{
		store:    store,
		notifier: notifier,
		clock:    clock,
		newSeed:  newSeed,
	}
}

// StartDrawInput identifies the group to draw and the caller requesting it.
type StartDrawInput struct {
	GroupID  string
	CallerID string
}

// StartDrawResult is the audit view of a completed draw.
type StartDrawResult struct {
	Edges       []Edge
	MemberCount int
}

// PullAssignmentInput identifies one participant requesting an on-demand
// assignment.
type PullAssignmentInput struct {
	GroupID       string
	ParticipantID string
	CallerID      string
}

// RevealInput identifies one participant disclosing their assignment.
type RevealInput struct {
	GroupID       string
	ParticipantID string
	CallerID      string
}

// StartDraw deranges the entire group in one atomic commit.
//
// The pending→started transition is checked and written inside the same
// transaction as every member assignment, so of two concurrent draw
// attempts exactly one succeeds; the other observes the started status
// and fails with a precondition error. Assignments are generated with
// hasPicked left false; disclosure happens later through Reveal or Pull.
func (s *Service) StartDraw(ctx context.Context, input StartDrawInput) (StartDrawResult, error) {
	if s == nil || s.store == nil {
		return StartDrawResult{}, ErrStoreNotConfigured
	}
	groupID, callerID, err := requireGroupCaller(input.GroupID, input.CallerID)
	if err != nil {
		return StartDrawResult{}, err
	}

	seed, err := s.newSeed()
	if err != nil {
		return StartDrawResult{}, fmt.Errorf("new draw seed: %w", err)
	}

	var result StartDrawResult
	var memberIDs []string
	err = s.runGroupUpdate(ctx, groupID, func(ctx context.Context, tx TxView) error {
		group, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if group.OwnerID != callerID {
			return apperrors.New(apperrors.CodeNotGroupOwner,
				fmt.Sprintf("only the owner of group %s may start the draw", groupID))
		}
		if group.Status != StatusPending {
			return apperrors.New(apperrors.CodeDrawAlreadyStarted,
				fmt.Sprintf("group %s has already started", groupID))
		}
		if len(group.MemberIDs) < MinMembers {
			return apperrors.New(apperrors.CodeGroupTooSmall,
				fmt.Sprintf("group %s has %d members, need at least %d", groupID, len(group.MemberIDs), MinMembers))
		}

		edges, err := Derange(group.MemberIDs, seed)
		if err != nil {
			return err
		}

		byID, err := loadMemberIndex(ctx, tx)
		if err != nil {
			return err
		}
		now := s.nowUTC()
		for _, edge := range edges {
			member, ok := byID[edge.GiverID]
			if !ok {
				return apperrors.New(apperrors.CodeMemberNotFound,
					fmt.Sprintf("member record for %s is missing in group %s", edge.GiverID, groupID))
			}
			member.AssignedToUserID = edge.RecipientID
			member.AssignedAt = &now
			if err := tx.PutMember(ctx, member); err != nil {
				return err
			}
		}
		if err := tx.StartGroup(ctx, now, edges); err != nil {
			return err
		}

		result = StartDrawResult{Edges: edges, MemberCount: len(edges)}
		memberIDs = group.MemberIDs
		return nil
	})
	if err != nil {
		return StartDrawResult{}, err
	}

	s.emitAssignmentAvailable(ctx, groupID, memberIDs)
	return result, nil
}

// PullAssignment computes one participant's assignment on demand.
//
// This is the fallback strategy for groups that assign per participant
// after start; StartDraw is the authoritative path. The pull is
// idempotent: a participant who already picked gets the stored recipient
// back with no write. Otherwise the recipient is drawn uniformly from the
// members nobody has claimed yet, except when the unassigned remainder
// has shrunk to CriticalCycleThreshold or fewer, when the whole
// remainder is closed out at once by RotationCycle so the last
// participants can never corner themselves.
func (s *Service) PullAssignment(ctx context.Context, input PullAssignmentInput) (string, error) {
	if s == nil || s.store == nil {
		return "", ErrStoreNotConfigured
	}
	groupID, participantID, err := requireParticipantCaller(input.GroupID, input.ParticipantID, input.CallerID)
	if err != nil {
		return "", err
	}

	seed, err := s.newSeed()
	if err != nil {
		return "", fmt.Errorf("new pull seed: %w", err)
	}
	rng := rand.New(rand.NewSource(seed))

	var assigned string
	var disclosed []string
	err = s.runGroupUpdate(ctx, groupID, func(ctx context.Context, tx TxView) error {
		assigned = ""
		disclosed = nil

		group, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if group.Status != StatusStarted {
			return apperrors.New(apperrors.CodeDrawNotStarted,
				fmt.Sprintf("group %s has not started yet", groupID))
		}
		if !group.HasMember(participantID) {
			return apperrors.New(apperrors.CodeNotGroupMember,
				fmt.Sprintf("%s is not a member of group %s", participantID, groupID))
		}

		member, err := loadMember(ctx, tx, groupID, participantID)
		if err != nil {
			return err
		}
		now := s.nowUTC()

		if member.HasPicked {
			recipient, err := validateStored(member)
			if err != nil {
				return err
			}
			assigned = recipient
			return nil
		}

		if member.AssignedToUserID != "" {
			// The eager draw already generated this assignment; pulling
			// just discloses it.
			if member.AssignedToUserID == participantID {
				return selfAssignment(member)
			}
			member.HasPicked = true
			member.RevealedAt = &now
			if err := tx.PutMember(ctx, member); err != nil {
				return err
			}
			if err := tx.IncrementPickedCount(ctx, 1); err != nil {
				return err
			}
			assigned = member.AssignedToUserID
			disclosed = []string{participantID}
			return nil
		}

		members, err := tx.Members(ctx)
		if err != nil {
			return err
		}
		byID := make(map[string]Member, len(members))
		claimed := make(map[string]bool, len(members))
		for _, m := range members {
			byID[m.UserID] = m
			if m.AssignedToUserID != "" {
				claimed[m.AssignedToUserID] = true
			}
		}

		var unassignedGivers []string
		var unclaimed []string
		var pool []string
		for _, m := range members {
			if m.AssignedToUserID == "" {
				unassignedGivers = append(unassignedGivers, m.UserID)
			}
			if !claimed[m.UserID] {
				unclaimed = append(unclaimed, m.UserID)
				if m.UserID != participantID {
					pool = append(pool, m.UserID)
				}
			}
		}
		if len(pool) == 0 {
			return apperrors.New(apperrors.CodeNoAvailableRecipients,
				fmt.Sprintf("no available recipients remain in group %s", groupID))
		}

		if len(unassignedGivers) <= CriticalCycleThreshold {
			edges, err := RotationCycle(unassignedGivers, unclaimed)
			if err != nil {
				return err
			}
			for _, edge := range edges {
				m, ok := byID[edge.GiverID]
				if !ok {
					return apperrors.New(apperrors.CodeMemberNotFound,
						fmt.Sprintf("member record for %s is missing in group %s", edge.GiverID, groupID))
				}
				m.AssignedToUserID = edge.RecipientID
				m.AssignedAt = &now
				m.HasPicked = true
				m.RevealedAt = &now
				if err := tx.PutMember(ctx, m); err != nil {
					return err
				}
				if edge.GiverID == participantID {
					assigned = edge.RecipientID
				}
				disclosed = append(disclosed, edge.GiverID)
			}
			if err := tx.IncrementPickedCount(ctx, len(edges)); err != nil {
				return err
			}
			if assigned == "" {
				return apperrors.New(apperrors.CodeCriticalCycleViolation,
					fmt.Sprintf("critical cycle did not cover caller %s in group %s", participantID, groupID))
			}
			return nil
		}

		recipient := pool[rng.Intn(len(pool))]
		member.AssignedToUserID = recipient
		member.AssignedAt = &now
		member.HasPicked = true
		member.RevealedAt = &now
		if err := tx.PutMember(ctx, member); err != nil {
			return err
		}
		if err := tx.IncrementPickedCount(ctx, 1); err != nil {
			return err
		}
		assigned = recipient
		disclosed = []string{participantID}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.emitAssignmentAvailable(ctx, groupID, disclosed)
	return assigned, nil
}

// Reveal discloses a participant's already-computed assignment exactly
// once. A repeat reveal returns the stored recipient unchanged with no
// write; the first reveal marks the member picked, stamps the disclosure
// time, and bumps the advisory picked count in the same transaction.
func (s *Service) Reveal(ctx context.Context, input RevealInput) (string, error) {
	if s == nil || s.store == nil {
		return "", ErrStoreNotConfigured
	}
	groupID, participantID, err := requireParticipantCaller(input.GroupID, input.ParticipantID, input.CallerID)
	if err != nil {
		return "", err
	}

	var assigned string
	var disclosed []string
	err = s.runGroupUpdate(ctx, groupID, func(ctx context.Context, tx TxView) error {
		assigned = ""
		disclosed = nil

		group, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if group.Status != StatusStarted {
			return apperrors.New(apperrors.CodeDrawNotStarted,
				fmt.Sprintf("group %s has not started yet", groupID))
		}
		if !group.HasMember(participantID) {
			return apperrors.New(apperrors.CodeNotGroupMember,
				fmt.Sprintf("%s is not a member of group %s", participantID, groupID))
		}

		member, err := loadMember(ctx, tx, groupID, participantID)
		if err != nil {
			return err
		}

		if member.HasPicked {
			recipient, err := validateStored(member)
			if err != nil {
				return err
			}
			assigned = recipient
			return nil
		}

		if member.AssignedToUserID == "" {
			return apperrors.New(apperrors.CodeAssignmentMissing,
				fmt.Sprintf("no assignment has been generated for %s in group %s", participantID, groupID))
		}
		if member.AssignedToUserID == participantID {
			return selfAssignment(member)
		}

		now := s.nowUTC()
		member.HasPicked = true
		member.RevealedAt = &now
		if err := tx.PutMember(ctx, member); err != nil {
			return err
		}
		if err := tx.IncrementPickedCount(ctx, 1); err != nil {
			return err
		}
		assigned = member.AssignedToUserID
		disclosed = []string{participantID}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.emitAssignmentAvailable(ctx, groupID, disclosed)
	return assigned, nil
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) emitAssignmentAvailable(ctx context.Context, groupID string, participantIDs []string) {
	if s.notifier == nil || len(participantIDs) == 0 {
		return
	}
	event := AssignmentEvent{GroupID: groupID, ParticipantIDs: participantIDs}
	if err := s.notifier.AssignmentAvailable(ctx, event); err != nil {
		log.Printf("assignment notification failed group_id=%s participants=%d error=%v",
			groupID, len(participantIDs), err)
	}
}

func requireGroupCaller(groupID, callerID string) (string, string, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return "", "", apperrors.New(apperrors.CodeCallerIdentityMissing, "caller identity is required")
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return "", "", apperrors.New(apperrors.CodeGroupIDRequired, "group id is required")
	}
	return groupID, callerID, nil
}

func requireParticipantCaller(groupID, participantID, callerID string) (string, string, error) {
	groupID, callerID, err := requireGroupCaller(groupID, callerID)
	if err != nil {
		return "", "", err
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return "", "", apperrors.New(apperrors.CodeParticipantIDRequired, "participant id is required")
	}
	if callerID != participantID {
		return "", "", apperrors.New(apperrors.CodeParticipantMismatch,
			"participants may only request their own assignment")
	}
	return groupID, participantID, nil
}

func loadGroup(ctx context.Context, tx TxView, groupID string) (Group, error) {
	group, err := tx.Group(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Group{}, apperrors.Wrap(apperrors.CodeGroupNotFound,
				fmt.Sprintf("group %s not found", groupID), err)
		}
		return Group{}, err
	}
	return group, nil
}

func loadMember(ctx context.Context, tx TxView, groupID, userID string) (Member, error) {
	member, err := tx.Member(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Member{}, apperrors.Wrap(apperrors.CodeMemberNotFound,
				fmt.Sprintf("member record for %s is missing in group %s", userID, groupID), err)
		}
		return Member{}, err
	}
	return member, nil
}

func loadMemberIndex(ctx context.Context, tx TxView) (map[string]Member, error) {
	members, err := tx.Members(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Member, len(members))
	for _, member := range members {
		byID[member.UserID] = member
	}
	return byID, nil
}

// validateStored re-validates an already-disclosed assignment before
// returning it. A picked member without a stored recipient, or with
// itself as recipient, indicates a data-integrity bug upstream.
func validateStored(member Member) (string, error) {
	if member.AssignedToUserID == "" {
		return "", apperrors.New(apperrors.CodeAssignmentMissing,
			fmt.Sprintf("%s is marked as picked but has no stored assignment", member.UserID))
	}
	if member.AssignedToUserID == member.UserID {
		return "", selfAssignment(member)
	}
	return member.AssignedToUserID, nil
}

func selfAssignment(member Member) *apperrors.Error {
	return apperrors.New(apperrors.CodeSelfAssignmentDetected,
		fmt.Sprintf("member %s of group %s is assigned to itself", member.UserID, member.GroupID))
}
