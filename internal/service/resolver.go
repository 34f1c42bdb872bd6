package service

import (
	"context"
	"sort"
)

// AssignmentStore supplies the active reviewer-assignment links the resolver
// reads. Implemented by repository.AssignmentRepository.
type AssignmentStore interface {
	// ListDirectReviewers returns user ids directly assigned to a stage,
	// active links and active users only.
	ListDirectReviewers(ctx context.Context, stageID string) ([]string, error)
	// ListAssignedTeams returns active team ids assigned to a stage.
	ListAssignedTeams(ctx context.Context, stageID string) ([]string, error)
	// ListTeamMembers returns active member user ids of a team.
	ListTeamMembers(ctx context.Context, teamID string) ([]string, error)
}

// AssignmentResolver computes a stage's effective reviewer set: the union of
// directly assigned users and the members of every assigned team. It is a
// pure function of current link state — no caching across calls — because
// team membership can change between requests.
type AssignmentResolver struct {
	store AssignmentStore
}

// NewAssignmentResolver creates a new AssignmentResolver.
func NewAssignmentResolver(store AssignmentStore) *AssignmentResolver {
	return &AssignmentResolver{store: store}
}

// ResolveReviewers returns the deduplicated, sorted reviewer set for a stage.
// An empty set is a valid result; every decision at such a stage is then
// forbidden.
func (r *AssignmentResolver) ResolveReviewers(ctx context.Context, stageID string) ([]string, error) {
	seen := make(map[string]struct{})

	direct, err := r.store.ListDirectReviewers(ctx, stageID)
	if err != nil {
		return nil, err
	}
	for _, id := range direct {
		seen[id] = struct{}{}
	}

	teams, err := r.store.ListAssignedTeams(ctx, stageID)
	if err != nil {
		return nil, err
	}
	for _, teamID := range teams {
		members, err := r.store.ListTeamMembers(ctx, teamID)
		if err != nil {
			return nil, err
		}
		for _, id := range members {
			seen[id] = struct{}{}
		}
	}

	reviewers := make([]string, 0, len(seen))
	for id := range seen {
		reviewers = append(reviewers, id)
	}
	sort.Strings(reviewers)
	return reviewers, nil
}

// Authorized reports whether userID is in the stage's resolved reviewer set.
func (r *AssignmentResolver) Authorized(ctx context.Context, stageID, userID string) (bool, error) {
	reviewers, err := r.ResolveReviewers(ctx, stageID)
	if err != nil {
		return false, err
	}
	for _, id := range reviewers {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}
