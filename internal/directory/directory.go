package directory

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var ErrUserNotFound = errors.New("user not found")

// PrivilegedRoles are the directory roles allowed to create groups, attach
// media and moderate. Distinct from the in-group admin role.
var PrivilegedRoles = []string{"superadmin", "pastor", "minister", "executive", "media"}

// User is the read-only directory view of a member: display fields plus the
// department/role facts the sync engine converges on.
type User struct {
	ID                   int            `db:"id"`
	FullName             string         `db:"full_name"`
	PhotoURL             *string        `db:"photo_url"`
	IsApproved           bool           `db:"is_approved"`
	Departments          pq.StringArray `db:"departments"`
	Roles                pq.StringArray `db:"roles"`
	ExecutiveDepartments pq.StringArray `db:"executive_departments"`
}

// HasPrivilegedRole reports whether any directory role of the user is in the
// privileged set.
func (u User) HasPrivilegedRole() bool {
	for _, role := range u.Roles {
		for _, p := range PrivilegedRoles {
			if role == p {
				return true
			}
		}
	}
	return false
}

// IsExecutiveIn reports whether the user is flagged executive for the department.
func (u User) IsExecutiveIn(department string) bool {
	for _, d := range u.ExecutiveDepartments {
		if d == department {
			return true
		}
	}
	return false
}

// Directory is the narrow lookup surface over the external user store.
type Directory interface {
	GetUser(ctx context.Context, userID int) (User, error)
	BulkUsers(ctx context.Context, ids []int) ([]User, error)
	UserIDsInDepartment(ctx context.Context, department string) ([]int, error)
	ExecutiveIDsInDepartment(ctx context.Context, department string) ([]int, error)
	ApprovedUserIDs(ctx context.Context) ([]int, error)
	FirstPrivilegedUserID(ctx context.Context) (int, bool, error)
}

// SQLDirectory reads the shared users table. It never writes.
type SQLDirectory struct {
	db *sqlx.DB
}

// NewSQLDirectory constructs a SQLDirectory.
func NewSQLDirectory(db *sqlx.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

const userColumns = `id, full_name, photo_url, is_approved, departments, roles, executive_departments`

// GetUser fetches one directory entry.
func (d *SQLDirectory) GetUser(ctx context.Context, userID int) (User, error) {
	var u User
	err := d.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

// BulkUsers fetches multiple entries in one query.
func (d *SQLDirectory) BulkUsers(ctx context.Context, ids []int) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	var users []User
	err := d.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, pq.Array(ids))
	return users, err
}

// UserIDsInDepartment returns approved users listing the department.
func (d *SQLDirectory) UserIDsInDepartment(ctx context.Context, department string) ([]int, error) {
	var ids []int
	err := d.db.SelectContext(ctx, &ids,
		`SELECT id FROM users WHERE is_approved AND departments @> ARRAY[$1]::text[] ORDER BY id`, department)
	return ids, err
}

// ExecutiveIDsInDepartment returns users flagged executive for the department.
func (d *SQLDirectory) ExecutiveIDsInDepartment(ctx context.Context, department string) ([]int, error) {
	var ids []int
	err := d.db.SelectContext(ctx, &ids,
		`SELECT id FROM users WHERE is_approved AND executive_departments @> ARRAY[$1]::text[] ORDER BY id`, department)
	return ids, err
}

// ApprovedUserIDs returns every approved user id.
func (d *SQLDirectory) ApprovedUserIDs(ctx context.Context) ([]int, error) {
	var ids []int
	err := d.db.SelectContext(ctx, &ids, `SELECT id FROM users WHERE is_approved ORDER BY id`)
	return ids, err
}

// FirstPrivilegedUserID returns the oldest directory entry holding a
// privileged role, used as the creator of lazily-created church-wide groups.
func (d *SQLDirectory) FirstPrivilegedUserID(ctx context.Context) (int, bool, error) {
	var id int
	err := d.db.GetContext(ctx, &id,
		`SELECT id FROM users WHERE is_approved AND roles && $1::text[] ORDER BY id LIMIT 1`,
		pq.Array(PrivilegedRoles))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
