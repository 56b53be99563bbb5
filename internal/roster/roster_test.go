package roster_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
	graph "github.com/hanpama/rosterql/internal/graph"
	roster "github.com/hanpama/rosterql/internal/roster"
	storetest "github.com/hanpama/rosterql/internal/store/storetest"
)

func setup(t *testing.T, seed bool) (*graph.Schema, graph.Context) {
	t.Helper()
	s, err := roster.NewSchema()
	require.NoError(t, err)
	return s, graph.Context{Store: storetest.New(t, seed)}
}

func TestTeamsWithMembers(t *testing.T) {
	s, gctx := setup(t, true)

	res := s.Execute(context.Background(), gctx, graph.Request{Query: `{
		teams { id name members { name knockouts } }
	}`})
	require.Empty(t, res.Errors)

	want := map[string]any{"teams": []any{
		map[string]any{"id": "1", "name": "Heroes", "members": []any{
			map[string]any{"name": "Link", "knockouts": 14},
			map[string]any{"name": "Mario", "knockouts": 11},
			map[string]any{"name": "Kirby", "knockouts": 8},
		}},
		map[string]any{"id": "2", "name": "Villains", "members": []any{
			map[string]any{"name": "Ganondorf", "knockouts": 9},
			map[string]any{"name": "Bowser", "knockouts": 12},
			map[string]any{"name": "King Dedede", "knockouts": 5},
		}},
	}}
	if diff := cmp.Diff(want, res.Data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestMemberLookup(t *testing.T) {
	s, gctx := setup(t, true)

	res := s.Execute(context.Background(), gctx, graph.Request{
		Query:     `query M($id: ID!) { member(id: $id) { name teamId team { name } } }`,
		Variables: map[string]any{"id": "5"},
	})
	require.Empty(t, res.Errors)
	want := map[string]any{"member": map[string]any{
		"name": "Bowser", "teamId": "2", "team": map[string]any{"name": "Villains"},
	}}
	require.Equal(t, want, res.Data)
}

func TestUnknownIDsResolveToNull(t *testing.T) {
	s, gctx := setup(t, true)

	res := s.Execute(context.Background(), gctx, graph.Request{Query: `{
		a: member(id: "999") { name }
		b: member(id: "not-a-number") { name }
		c: team(id: 0) { name }
	}`})
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"a": nil, "b": nil, "c": nil}, res.Data)
}

func TestEmptyStore(t *testing.T) {
	s, gctx := setup(t, false)

	res := s.Execute(context.Background(), gctx, graph.Request{Query: `{ teams { id } members { id } }`})
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{"teams": []any{}, "members": []any{}}, res.Data)
}

func TestCreateMember(t *testing.T) {
	s, gctx := setup(t, true)
	ctx := context.Background()

	res := s.Execute(ctx, gctx, graph.Request{
		Query: `mutation Add($in: NewMember!) {
			createMember(input: $in) { id name knockouts team { name } }
		}`,
		Variables: map[string]any{"in": map[string]any{"name": "  Samus ", "teamId": "1"}},
	})
	require.Empty(t, res.Errors)
	want := map[string]any{"createMember": map[string]any{
		"id": "7", "name": "Samus", "knockouts": 0, "team": map[string]any{"name": "Heroes"},
	}}
	require.Equal(t, want, res.Data)

	res = s.Execute(ctx, gctx, graph.Request{Query: `{ team(id: "1") { members { name } } }`})
	require.Empty(t, res.Errors)
	members := res.Data.(map[string]any)["team"].(map[string]any)["members"].([]any)
	require.Len(t, members, 4)
}

func TestCreateMemberRejectsBadInput(t *testing.T) {
	s, gctx := setup(t, true)

	tests := []struct {
		name  string
		input string
		field string
	}{
		{"missing team", `{name: "Zelda", teamId: "42"}`, "teamId"},
		{"blank name", `{name: "   ", teamId: "1"}`, "name"},
		{"negative knockouts", `{name: "Zelda", knockouts: -1, teamId: "1"}`, "knockouts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Execute(context.Background(), gctx, graph.Request{
				Query: `mutation { createMember(input: ` + tt.input + `) { id } }`,
			})
			// createMember is non-null, so the whole data object is nulled.
			require.Nil(t, res.Data)
			require.Len(t, res.Errors, 1)
			require.Equal(t, "BAD_USER_INPUT", res.Errors[0].Extensions["code"])
			require.Equal(t, tt.field, res.Errors[0].Extensions["field"])
		})
	}
}

func TestMissingStore(t *testing.T) {
	s, err := roster.NewSchema()
	require.NoError(t, err)

	res := s.Execute(context.Background(), graph.Context{}, graph.Request{Query: `{ team(id: "1") { name } }`})
	require.Equal(t, map[string]any{"team": nil}, res.Data)
	require.Len(t, res.Errors, 1)
}

func TestRelationsLoadOncePerList(t *testing.T) {
	s, gctx := setup(t, true)

	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	var queries []string
	eventbus.Subscribe(func(ctx context.Context, e events.StoreQuery) {
		require.NoError(t, e.Err)
		queries = append(queries, e.Name)
	})

	res := s.Execute(context.Background(), gctx, graph.Request{Query: `{
		teams { name members { name team { name } } }
	}`})
	require.Empty(t, res.Errors)

	// one query for the teams, one for all their members, one per team for
	// the members' teams
	want := []string{"teams", "members_by_teams", "teams_by_id", "teams_by_id"}
	if diff := cmp.Diff(want, queries); diff != "" {
		t.Fatalf("store queries mismatch (-want +got):\n%s", diff)
	}

	teams := res.Data.(map[string]any)["teams"].([]any)
	require.Len(t, teams, 2)
	for _, tm := range teams {
		team := tm.(map[string]any)
		members := team["members"].([]any)
		require.Len(t, members, 3)
		for _, m := range members {
			require.Equal(t, map[string]any{"name": team["name"]}, m.(map[string]any)["team"])
		}
	}
}

func TestMembersListResolvesTeamsTogether(t *testing.T) {
	s, gctx := setup(t, true)

	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })
	var queries []string
	eventbus.Subscribe(func(ctx context.Context, e events.StoreQuery) { queries = append(queries, e.Name) })

	res := s.Execute(context.Background(), gctx, graph.Request{Query: `{ members { team { id } } }`})
	require.Empty(t, res.Errors)
	require.Equal(t, []string{"members", "teams_by_id"}, queries)
	require.Len(t, res.Data.(map[string]any)["members"], 6)
}
