package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linkedAssignments models tombstoned links the way the real tables do, so
// the active-only contract is exercised rather than assumed.
type link struct {
	id      string
	deleted bool
}

type linkedAssignments struct {
	direct  map[string][]link // stage id -> user links
	teams   map[string][]link // stage id -> team links
	members map[string][]link // team id -> member links
}

func activeIDs(links []link) []string {
	var ids []string
	for _, l := range links {
		if !l.deleted {
			ids = append(ids, l.id)
		}
	}
	return ids
}

func (f *linkedAssignments) ListDirectReviewers(_ context.Context, stageID string) ([]string, error) {
	return activeIDs(f.direct[stageID]), nil
}

func (f *linkedAssignments) ListAssignedTeams(_ context.Context, stageID string) ([]string, error) {
	return activeIDs(f.teams[stageID]), nil
}

func (f *linkedAssignments) ListTeamMembers(_ context.Context, teamID string) ([]string, error) {
	return activeIDs(f.members[teamID]), nil
}

func TestResolveReviewersUnionsAndDeduplicates(t *testing.T) {
	store := &linkedAssignments{
		direct: map[string][]link{
			"st-1": {{id: "alice"}, {id: "bob"}},
		},
		teams: map[string][]link{
			"st-1": {{id: "team-a"}, {id: "team-b"}},
		},
		members: map[string][]link{
			"team-a": {{id: "bob"}, {id: "carol"}},
			"team-b": {{id: "carol"}, {id: "dana"}},
		},
	}
	r := NewAssignmentResolver(store)

	reviewers, err := r.ResolveReviewers(context.Background(), "st-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol", "dana"}, reviewers)
}

func TestResolveReviewersTeamOnlyStage(t *testing.T) {
	// Stage with no direct assignment, one team with two members.
	store := &linkedAssignments{
		direct:  map[string][]link{},
		teams:   map[string][]link{"st-1": {{id: "team-t"}}},
		members: map[string][]link{"team-t": {{id: "u1"}, {id: "u2"}}},
	}
	r := NewAssignmentResolver(store)

	reviewers, err := r.ResolveReviewers(context.Background(), "st-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, reviewers)
}

func TestResolveReviewersExcludesTombstonedLinks(t *testing.T) {
	store := &linkedAssignments{
		direct: map[string][]link{
			"st-1": {{id: "alice"}, {id: "bob", deleted: true}},
		},
		teams: map[string][]link{
			"st-1": {{id: "team-a"}, {id: "team-b", deleted: true}},
		},
		members: map[string][]link{
			"team-a": {{id: "carol"}, {id: "dana", deleted: true}},
			"team-b": {{id: "eve"}}, // unreachable: the team link is tombstoned
		},
	}
	r := NewAssignmentResolver(store)

	reviewers, err := r.ResolveReviewers(context.Background(), "st-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol"}, reviewers)
}

func TestResolveReviewersEmptySet(t *testing.T) {
	store := &linkedAssignments{
		direct:  map[string][]link{},
		teams:   map[string][]link{},
		members: map[string][]link{},
	}
	r := NewAssignmentResolver(store)

	reviewers, err := r.ResolveReviewers(context.Background(), "st-none")
	require.NoError(t, err)
	assert.Empty(t, reviewers)
}

func TestAuthorized(t *testing.T) {
	store := &linkedAssignments{
		direct:  map[string][]link{"st-1": {{id: "alice"}}},
		teams:   map[string][]link{"st-1": {{id: "team-a"}}},
		members: map[string][]link{"team-a": {{id: "bob"}}},
	}
	r := NewAssignmentResolver(store)
	ctx := context.Background()

	tests := []struct {
		user string
		want bool
	}{
		{"alice", true},
		{"bob", true},
		{"mallory", false},
	}
	for _, tt := range tests {
		got, err := r.Authorized(ctx, "st-1", tt.user)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.user)
	}
}
