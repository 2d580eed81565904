package chat

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository implements Store on Postgres. Inserts that would violate a
// uniqueness constraint use ON CONFLICT DO NOTHING, so two concurrent
// identical requests cannot produce duplicate rows.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Profile(ctx context.Context, userID string) (*Profile, error) {
	p := &Profile{}
	query := `SELECT user_id, username, avatar, role, tag, created_at
	          FROM users WHERE user_id = $1`
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&p.UserID, &p.Username, &p.Avatar, &p.Role, &p.Tag, &p.CreateTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) GroupByID(ctx context.Context, groupID string) (*Group, error) {
	g := &Group{}
	query := `SELECT group_id, group_name, user_id, created_at FROM groups WHERE group_id = $1`
	err := r.db.QueryRowContext(ctx, query, groupID).
		Scan(&g.GroupID, &g.GroupName, &g.UserID, &g.CreateTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}

func (r *Repository) GroupByName(ctx context.Context, name string) (*Group, error) {
	g := &Group{}
	query := `SELECT group_id, group_name, user_id, created_at FROM groups WHERE group_name = $1`
	err := r.db.QueryRowContext(ctx, query, name).
		Scan(&g.GroupID, &g.GroupName, &g.UserID, &g.CreateTime)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}

func (r *Repository) SaveGroup(ctx context.Context, g *Group) error {
	query := `INSERT INTO groups (group_id, group_name, user_id, created_at)
	          VALUES ($1, $2, $3, $4) ON CONFLICT (group_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, g.GroupID, g.GroupName, g.UserID, g.CreateTime)
	// The id conflict is absorbed above, so a unique violation here can
	// only come from the group_name constraint.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrGroupNameTaken
	}
	return err
}

func (r *Repository) Membership(ctx context.Context, groupID, userID string) (*GroupMember, error) {
	m := &GroupMember{}
	query := `SELECT group_id, user_id FROM group_members WHERE group_id = $1 AND user_id = $2`
	err := r.db.QueryRowContext(ctx, query, groupID, userID).Scan(&m.GroupID, &m.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (r *Repository) SaveMembership(ctx context.Context, m *GroupMember) error {
	query := `INSERT INTO group_members (group_id, user_id)
	          VALUES ($1, $2) ON CONFLICT (group_id, user_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, m.GroupID, m.UserID)
	return err
}

func (r *Repository) MembershipsByUser(ctx context.Context, userID string) ([]GroupMember, error) {
	query := `SELECT group_id, user_id FROM group_members WHERE user_id = $1`
	return r.scanMembers(ctx, query, userID)
}

func (r *Repository) MembershipsByGroup(ctx context.Context, groupID string) ([]GroupMember, error) {
	query := `SELECT group_id, user_id FROM group_members WHERE group_id = $1`
	return r.scanMembers(ctx, query, groupID)
}

func (r *Repository) scanMembers(ctx context.Context, query string, arg any) ([]GroupMember, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *Repository) SaveGroupMessage(ctx context.Context, m *GroupMessage) error {
	query := `INSERT INTO group_messages (group_id, user_id, content, message_type, created_at)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		m.GroupID, m.UserID, m.Content, m.MessageType, m.Time).Scan(&m.ID)
}

func (r *Repository) GroupMessages(ctx context.Context, groupID string) ([]GroupMessage, error) {
	query := `SELECT id, group_id, user_id, content, message_type, created_at
	          FROM group_messages WHERE group_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []GroupMessage
	for rows.Next() {
		var m GroupMessage
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Content, &m.MessageType, &m.Time); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *Repository) FriendLink(ctx context.Context, userID, friendID string) (*FriendLink, error) {
	l := &FriendLink{}
	query := `SELECT user_id, friend_id FROM friends WHERE user_id = $1 AND friend_id = $2`
	err := r.db.QueryRowContext(ctx, query, userID, friendID).Scan(&l.UserID, &l.FriendID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

func (r *Repository) SaveFriendLink(ctx context.Context, l *FriendLink) error {
	query := `INSERT INTO friends (user_id, friend_id)
	          VALUES ($1, $2) ON CONFLICT (user_id, friend_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, l.UserID, l.FriendID)
	return err
}

func (r *Repository) DeleteFriendLink(ctx context.Context, userID, friendID string) error {
	query := `DELETE FROM friends WHERE user_id = $1 AND friend_id = $2`
	_, err := r.db.ExecContext(ctx, query, userID, friendID)
	return err
}

func (r *Repository) FriendLinksByUser(ctx context.Context, userID string) ([]FriendLink, error) {
	query := `SELECT user_id, friend_id FROM friends WHERE user_id = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []FriendLink
	for rows.Next() {
		var l FriendLink
		if err := rows.Scan(&l.UserID, &l.FriendID); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (r *Repository) SaveFriendMessage(ctx context.Context, m *FriendMessage) error {
	query := `INSERT INTO friend_messages (user_id, friend_id, content, message_type, created_at)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		m.UserID, m.FriendID, m.Content, m.MessageType, m.Time).Scan(&m.ID)
}

func (r *Repository) FriendMessages(ctx context.Context, userID, friendID string) ([]FriendMessage, error) {
	query := `SELECT id, user_id, friend_id, content, message_type, created_at
	          FROM friend_messages WHERE user_id = $1 AND friend_id = $2 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID, friendID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []FriendMessage
	for rows.Next() {
		var m FriendMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.FriendID, &m.Content, &m.MessageType, &m.Time); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Side-channel reads used by the HTTP listing endpoints. Same store,
// no broadcast side effects.

// GroupsByIDs resolves an id set with point lookups; unknown ids are
// skipped.
func (r *Repository) GroupsByIDs(ctx context.Context, groupIDs []string) ([]Group, error) {
	var groups []Group
	for _, id := range groupIDs {
		g, err := r.GroupByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if g != nil {
			groups = append(groups, *g)
		}
	}
	return groups, nil
}

// GroupsByName finds groups whose name contains the query, or the exact
// match when exact is set.
func (r *Repository) GroupsByName(ctx context.Context, name string, exact bool) ([]Group, error) {
	query := `SELECT group_id, group_name, user_id, created_at FROM groups WHERE group_name ILIKE $1 LIMIT 20`
	pattern := "%" + strings.TrimSpace(name) + "%"
	if exact {
		query = `SELECT group_id, group_name, user_id, created_at FROM groups WHERE group_name = $1`
		pattern = name
	}

	rows, err := r.db.QueryContext(ctx, query, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.GroupID, &g.GroupName, &g.UserID, &g.CreateTime); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GroupMemberProfiles lists the public profiles of a group's members.
func (r *Repository) GroupMemberProfiles(ctx context.Context, groupID string) ([]Profile, error) {
	members, err := r.MembershipsByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}

	var profiles []Profile
	for _, m := range members {
		p, err := r.Profile(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			profiles = append(profiles, *p)
		}
	}
	return profiles, nil
}

// UserGroups lists the groups a user belongs to.
func (r *Repository) UserGroups(ctx context.Context, userID string) ([]Group, error) {
	members, err := r.MembershipsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var groups []Group
	for _, m := range members {
		g, err := r.GroupByID(ctx, m.GroupID)
		if err != nil {
			return nil, err
		}
		if g != nil {
			groups = append(groups, *g)
		}
	}
	return groups, nil
}
