package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"church-chat-service/internal/models"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrGroupExists   = errors.New("group already exists")
	ErrNotMember     = errors.New("not a group member")
)

const pqUniqueViolation = "23505"

// CreateGroupParams carries the group attributes on creation. CreatorRole
// distinguishes explicit creation (admin) from engine-triggered creation,
// where the triggering user is just another member.
type CreateGroupParams struct {
	Name        string
	Description string
	Kind        models.GroupKind
	Department  *string
	CreatedBy   int
	CreatorRole models.MemberRole
	AutoJoin    bool
	PhotoURL    *string
}

// GroupRepository abstracts group and membership persistence.
type GroupRepository interface {
	CreateGroupWithMembers(ctx context.Context, p CreateGroupParams, memberIDs []int) (models.Group, error)
	GetGroup(ctx context.Context, groupID int) (models.Group, error)
	ActiveGroupByKind(ctx context.Context, kind models.GroupKind, department *string) (models.Group, error)
	ListGroupSummaries(ctx context.Context, userID int) ([]models.GroupSummary, error)
	IsMember(ctx context.Context, groupID int, userID int) (bool, error)
	MemberRole(ctx context.Context, groupID int, userID int) (models.MemberRole, error)
	AddMember(ctx context.Context, groupID int, userID int, role models.MemberRole) error
	RemoveMember(ctx context.Context, groupID int, userID int) error
	RemoveDepartmentMembership(ctx context.Context, userID int, department string) error
	UpdateMemberRole(ctx context.Context, groupID int, userID int, role models.MemberRole) error
	CountAdmins(ctx context.Context, groupID int) (int, error)
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

const groupColumns = `id, name, description, kind, department, created_by, auto_join, is_active, photo_url, created_at, updated_at`

// CreateGroupWithMembers creates a group and its initial membership
// atomically. The creator joins with p.CreatorRole; memberIDs join as plain
// members. A unique-constraint race on (kind, department) surfaces as
// ErrGroupExists so callers can re-read the winning row.
func (r *GroupRepo) CreateGroupWithMembers(ctx context.Context, p CreateGroupParams, memberIDs []int) (models.Group, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Group{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var group models.Group
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO groups (name, description, kind, department, created_by, auto_join, photo_url)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         RETURNING `+groupColumns,
		p.Name, p.Description, p.Kind, p.Department, p.CreatedBy, p.AutoJoin, p.PhotoURL).StructScan(&group)
	if err != nil {
		if isUniqueViolation(err) {
			err = ErrGroupExists
		}
		return models.Group{}, err
	}

	creatorRole := p.CreatorRole
	if !creatorRole.Valid() {
		creatorRole = models.RoleMember
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)`,
		group.ID, p.CreatedBy, creatorRole); err != nil {
		return models.Group{}, err
	}

	members := make([]int, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != p.CreatedBy {
			members = append(members, id)
		}
	}
	if err = addMembers(ctx, tx, group.ID, members, models.RoleMember); err != nil {
		return models.Group{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Group{}, err
	}
	return group, nil
}

// GetGroup fetches a single group.
func (r *GroupRepo) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	var group models.Group
	err := r.db.GetContext(ctx, &group, `SELECT `+groupColumns+` FROM groups WHERE id=$1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// ActiveGroupByKind finds the active group for a kind, optionally scoped to a
// department tag. Used by the sync engine to locate department, executive and
// general groups.
func (r *GroupRepo) ActiveGroupByKind(ctx context.Context, kind models.GroupKind, department *string) (models.Group, error) {
	var group models.Group
	var err error
	if department != nil {
		err = r.db.GetContext(ctx, &group,
			`SELECT `+groupColumns+` FROM groups WHERE kind=$1 AND department=$2 AND is_active`, kind, *department)
	} else {
		err = r.db.GetContext(ctx, &group,
			`SELECT `+groupColumns+` FROM groups WHERE kind=$1 AND is_active`, kind)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return models.Group{}, ErrGroupNotFound
	}
	return group, err
}

// ListGroupSummaries returns the caller's groups annotated with member count,
// unread count and last-message preview, ordered by last activity.
func (r *GroupRepo) ListGroupSummaries(ctx context.Context, userID int) ([]models.GroupSummary, error) {
	query := `SELECT g.id, g.name, g.description, g.kind, g.department, g.created_by, g.auto_join,
            g.is_active, g.photo_url, g.created_at, g.updated_at,
            (SELECT COUNT(*) FROM group_members m WHERE m.group_id = g.id) AS member_count,
            (SELECT COUNT(*) FROM messages ms WHERE ms.group_id = g.id AND ms.sender_id <> $1 AND NOT ms.is_read) AS unread_count,
            lm.body AS last_message,
            lm.created_at AS last_message_at
        FROM groups g
        INNER JOIN group_members gm ON gm.group_id = g.id AND gm.user_id = $1
        LEFT JOIN LATERAL (
            SELECT body, created_at FROM messages
            WHERE group_id = g.id ORDER BY created_at DESC LIMIT 1
        ) lm ON TRUE
        WHERE g.is_active
        ORDER BY COALESCE(lm.created_at, g.created_at) DESC`
	summaries := []models.GroupSummary{}
	err := r.db.SelectContext(ctx, &summaries, query, userID)
	return summaries, err
}

// IsMember checks membership.
func (r *GroupRepo) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id=$1 AND user_id=$2)`, groupID, userID)
	return exists, err
}

// MemberRole returns the caller's role in the group, or ErrNotMember.
func (r *GroupRepo) MemberRole(ctx context.Context, groupID int, userID int) (models.MemberRole, error) {
	var role models.MemberRole
	err := r.db.GetContext(ctx, &role,
		`SELECT role FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotMember
	}
	return role, err
}

// AddMember inserts a membership row; existing membership is left untouched.
func (r *GroupRepo) AddMember(ctx context.Context, groupID int, userID int, role models.MemberRole) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)
         ON CONFLICT (group_id, user_id) DO NOTHING`, groupID, userID, role)
	return err
}

const memberInsertBatch = 500

// addMembers bulk-inserts membership rows with batched parameterized
// multi-row statements.
func addMembers(ctx context.Context, q sqlx.ExtContext, groupID int, userIDs []int, role models.MemberRole) error {
	for start := 0; start < len(userIDs); start += memberInsertBatch {
		end := start + memberInsertBatch
		if end > len(userIDs) {
			end = len(userIDs)
		}
		chunk := userIDs[start:end]

		values := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*3)
		for i, id := range chunk {
			values = append(values, fmt.Sprintf("($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3))
			args = append(args, groupID, id, role)
		}
		query := `INSERT INTO group_members (group_id, user_id, role) VALUES ` +
			strings.Join(values, ", ") + ` ON CONFLICT (group_id, user_id) DO NOTHING`
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMember deletes a membership row.
func (r *GroupRepo) RemoveMember(ctx context.Context, groupID int, userID int) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id=$1 AND user_id=$2`, groupID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotMember
	}
	return nil
}

// RemoveDepartmentMembership deletes the user's membership in the active
// department group for the tag. The group itself is never deleted, even when
// this leaves it empty.
func (r *GroupRepo) RemoveDepartmentMembership(ctx context.Context, userID int, department string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members gm USING groups g
         WHERE gm.group_id = g.id AND gm.user_id = $1
           AND g.kind = $2 AND g.department = $3 AND g.is_active`,
		userID, models.GroupKindDepartment, department)
	return err
}

// UpdateMemberRole changes a member's in-group role.
func (r *GroupRepo) UpdateMemberRole(ctx context.Context, groupID int, userID int, role models.MemberRole) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE group_members SET role=$3 WHERE group_id=$1 AND user_id=$2`, groupID, userID, role)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotMember
	}
	return nil
}

// CountAdmins counts admin members, used by the last-admin leave guard.
func (r *GroupRepo) CountAdmins(ctx context.Context, groupID int) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM group_members WHERE group_id=$1 AND role=$2`, groupID, models.RoleAdmin)
	return count, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
