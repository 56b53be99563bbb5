// Package roster is the demo domain served by rosterql: teams and the
// members that belong to them, backed by the relational store.
package roster

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	graph "github.com/hanpama/rosterql/internal/graph"
	store "github.com/hanpama/rosterql/internal/store"
)

//go:embed schema.graphql
var SDL string

// NewSchema compiles the roster schema with its resolvers bound.
func NewSchema(opts ...graph.Option) (*graph.Schema, error) {
	base := []graph.Option{graph.WithSourceName("roster.graphql")}
	for key, fn := range BatchResolvers() {
		base = append(base, graph.WithBatchResolver(key, fn))
	}
	return graph.Build(SDL, Resolvers(), append(base, opts...)...)
}

// Resolvers returns the dispatch table for the roster schema. Fields not
// listed here are read from the store structs by the default resolver.
func Resolvers() graph.Resolvers {
	return graph.Resolvers{
		"Query.members":         queryMembers,
		"Query.member":          queryMember,
		"Query.teams":           queryTeams,
		"Query.team":            queryTeam,
		"Mutation.createMember": createMember,
	}
}

// BatchResolvers returns the relation fields. Within a list they load every
// item's value with a single store query.
func BatchResolvers() map[string]graph.BatchResolver {
	return map[string]graph.BatchResolver{
		"Team.members": teamMembers,
		"Member.team":  memberTeam,
	}
}

// InputError is a resolver error caused by the caller's arguments.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Extensions() map[string]any {
	return map[string]any{"code": "BAD_USER_INPUT", "field": e.Field}
}

var errNoStore = errors.New("roster: no store in context")

func storeOf(p graph.ResolveParams) (*store.Store, error) {
	if p.Context.Store == nil {
		return nil, errNoStore
	}
	return p.Context.Store, nil
}

// parseID converts a GraphQL ID into a row id. Ids that are not positive
// integers cannot exist in the store.
func parseID(v any) (int64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func queryMembers(ctx context.Context, p graph.ResolveParams) (any, error) {
	s, err := storeOf(p)
	if err != nil {
		return nil, err
	}
	return s.Members(ctx)
}

func queryMember(ctx context.Context, p graph.ResolveParams) (any, error) {
	s, err := storeOf(p)
	if err != nil {
		return nil, err
	}
	id, ok := parseID(p.Args["id"])
	if !ok {
		return nil, nil
	}
	m, err := s.Member(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func queryTeams(ctx context.Context, p graph.ResolveParams) (any, error) {
	s, err := storeOf(p)
	if err != nil {
		return nil, err
	}
	return s.Teams(ctx)
}

func queryTeam(ctx context.Context, p graph.ResolveParams) (any, error) {
	s, err := storeOf(p)
	if err != nil {
		return nil, err
	}
	id, ok := parseID(p.Args["id"])
	if !ok {
		return nil, nil
	}
	t, err := s.Team(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func createMember(ctx context.Context, p graph.ResolveParams) (any, error) {
	s, err := storeOf(p)
	if err != nil {
		return nil, err
	}
	input, _ := p.Args["input"].(map[string]any)

	name, _ := input["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &InputError{Field: "name", Message: "name must not be blank"}
	}
	knockouts, _ := input["knockouts"].(int)
	if knockouts < 0 {
		return nil, &InputError{Field: "knockouts", Message: "knockouts must not be negative"}
	}
	teamID, ok := parseID(input["teamId"])
	if !ok {
		return nil, &InputError{Field: "teamId", Message: fmt.Sprintf("team %v does not exist", input["teamId"])}
	}

	m, err := s.CreateMember(ctx, store.NewMember{Name: name, Knockouts: knockouts, TeamID: teamID})
	if errors.Is(err, store.ErrNotFound) {
		return nil, &InputError{Field: "teamId", Message: fmt.Sprintf("team %d does not exist", teamID)}
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func teamMembers(ctx context.Context, ps []graph.ResolveParams) ([]any, error) {
	s, err := storeOf(ps[0])
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(ps))
	for i, p := range ps {
		t, ok := p.Source.(store.Team)
		if !ok {
			return nil, fmt.Errorf("roster: Team.members on %T", p.Source)
		}
		ids[i] = t.ID
	}

	byTeam, err := s.MembersByTeams(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = byTeam[id]
	}
	return out, nil
}

func memberTeam(ctx context.Context, ps []graph.ResolveParams) ([]any, error) {
	s, err := storeOf(ps[0])
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(ps))
	for i, p := range ps {
		m, ok := p.Source.(store.Member)
		if !ok {
			return nil, fmt.Errorf("roster: Member.team on %T", p.Source)
		}
		ids[i] = m.TeamID
	}

	byID, err := s.TeamsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(ids))
	for i, id := range ids {
		if t, ok := byID[id]; ok {
			out[i] = t
		} else {
			out[i] = fmt.Errorf("team %d: %w", id, store.ErrNotFound)
		}
	}
	return out, nil
}
