package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
)

type Team struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Member struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Knockouts int    `json:"knockouts"`
	TeamID    int64  `json:"teamId"`
}

// NewMember holds the columns supplied when creating a member.
type NewMember struct {
	Name      string
	Knockouts int
	TeamID    int64
}

func (s *Store) Teams(ctx context.Context) (teams []Team, err error) {
	defer observe(ctx, "teams", time.Now(), &err)
	return s.queryTeams(ctx, `SELECT id, name FROM teams ORDER BY id`)
}

// Team returns the team with the given id, or ErrNotFound.
func (s *Store) Team(ctx context.Context, id int64) (t Team, err error) {
	defer observe(ctx, "team", time.Now(), &err)
	err = s.db.QueryRowContext(ctx, `SELECT id, name FROM teams WHERE id = $1`, id).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Team{}, ErrNotFound
	}
	if err != nil {
		return Team{}, fmt.Errorf("query team %d: %w", id, err)
	}
	return t, nil
}

// TeamsByID loads several teams with one statement. Ids without a team are
// absent from the result.
func (s *Store) TeamsByID(ctx context.Context, ids []int64) (byID map[int64]Team, err error) {
	byID = make(map[int64]Team, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}
	defer observe(ctx, "teams_by_id", time.Now(), &err)

	in, args := inList(ids)
	teams, err := s.queryTeams(ctx, `SELECT id, name FROM teams WHERE id IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, t := range teams {
		byID[t.ID] = t
	}
	return byID, nil
}

func (s *Store) Members(ctx context.Context) (members []Member, err error) {
	defer observe(ctx, "members", time.Now(), &err)
	return s.queryMembers(ctx, `SELECT id, name, knockouts, team_id FROM members ORDER BY id`)
}

func (s *Store) MembersByTeam(ctx context.Context, teamID int64) (members []Member, err error) {
	defer observe(ctx, "members_by_team", time.Now(), &err)
	return s.queryMembers(ctx, `SELECT id, name, knockouts, team_id FROM members WHERE team_id = $1 ORDER BY id`, teamID)
}

// MembersByTeams loads the members of several teams with one statement,
// grouped by team id and ordered by member id. Every requested team has an
// entry, empty when it has no members.
func (s *Store) MembersByTeams(ctx context.Context, teamIDs []int64) (byTeam map[int64][]Member, err error) {
	byTeam = make(map[int64][]Member, len(teamIDs))
	for _, id := range teamIDs {
		byTeam[id] = []Member{}
	}
	if len(teamIDs) == 0 {
		return byTeam, nil
	}
	defer observe(ctx, "members_by_teams", time.Now(), &err)

	in, args := inList(teamIDs)
	members, err := s.queryMembers(ctx,
		`SELECT id, name, knockouts, team_id FROM members WHERE team_id IN (`+in+`) ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		byTeam[m.TeamID] = append(byTeam[m.TeamID], m)
	}
	return byTeam, nil
}

// Member returns the member with the given id, or ErrNotFound.
func (s *Store) Member(ctx context.Context, id int64) (m Member, err error) {
	defer observe(ctx, "member", time.Now(), &err)
	err = s.db.QueryRowContext(ctx, `SELECT id, name, knockouts, team_id FROM members WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.Knockouts, &m.TeamID)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, ErrNotFound
	}
	if err != nil {
		return Member{}, fmt.Errorf("query member %d: %w", id, err)
	}
	return m, nil
}

// CreateMember inserts a member. The team must exist; otherwise ErrNotFound is
// returned and nothing is written.
func (s *Store) CreateMember(ctx context.Context, in NewMember) (m Member, err error) {
	defer observe(ctx, "create_member", time.Now(), &err)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Member{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM teams WHERE id = $1`, in.TeamID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, ErrNotFound
	}
	if err != nil {
		return Member{}, fmt.Errorf("check team %d: %w", in.TeamID, err)
	}

	m = Member{Name: in.Name, Knockouts: in.Knockouts, TeamID: in.TeamID}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO members (name, knockouts, team_id) VALUES ($1, $2, $3) RETURNING id`,
		in.Name, in.Knockouts, in.TeamID,
	).Scan(&m.ID)
	if err != nil {
		return Member{}, fmt.Errorf("insert member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Member{}, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// Seed inserts a small demo roster when the teams table is empty. It reports
// whether anything was written.
func (s *Store) Seed(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM teams`).Scan(&n); err != nil {
		return false, fmt.Errorf("count teams: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	roster := []struct {
		team    string
		members []NewMember
	}{
		{"Heroes", []NewMember{{Name: "Link", Knockouts: 14}, {Name: "Mario", Knockouts: 11}, {Name: "Kirby", Knockouts: 8}}},
		{"Villains", []NewMember{{Name: "Ganondorf", Knockouts: 9}, {Name: "Bowser", Knockouts: 12}, {Name: "King Dedede", Knockouts: 5}}},
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, r := range roster {
		var teamID int64
		if err := tx.QueryRowContext(ctx, `INSERT INTO teams (name) VALUES ($1) RETURNING id`, r.team).Scan(&teamID); err != nil {
			return false, fmt.Errorf("insert team %s: %w", r.team, err)
		}
		for _, m := range r.members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO members (name, knockouts, team_id) VALUES ($1, $2, $3)`,
				m.Name, m.Knockouts, teamID,
			); err != nil {
				return false, fmt.Errorf("insert member %s: %w", m.Name, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

func (s *Store) queryMembers(ctx context.Context, query string, args ...any) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Name, &m.Knockouts, &m.TeamID); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) queryTeams(ctx context.Context, query string, args ...any) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	teams := []Team{}
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// inList renders "$1, $2, ..." for ids, deduplicated, with the matching args.
func inList(ids []int64) (string, []any) {
	seen := make(map[int64]bool, len(ids))
	var (
		marks []string
		args  []any
	)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		args = append(args, id)
		marks = append(marks, "$"+strconv.Itoa(len(args)))
	}
	return strings.Join(marks, ", "), args
}

// observe publishes a StoreQuery event for the statement that set *err.
func observe(ctx context.Context, name string, start time.Time, err *error) {
	e := events.StoreQuery{Name: name, Duration: time.Since(start)}
	if *err != nil && !errors.Is(*err, ErrNotFound) {
		e.Err = *err
	}
	eventbus.Publish(ctx, e)
}
