package models

import "time"

// GroupKind classifies a chat group.
type GroupKind string

const (
	GroupKindDepartment GroupKind = "department"
	GroupKindGeneral    GroupKind = "general"
	GroupKindMinisters  GroupKind = "ministers"
	GroupKindExecutive  GroupKind = "executive"
	GroupKindPrivate    GroupKind = "private"
)

// Valid reports whether the kind is one of the known values.
func (k GroupKind) Valid() bool {
	switch k {
	case GroupKindDepartment, GroupKindGeneral, GroupKindMinisters, GroupKindExecutive, GroupKindPrivate:
		return true
	}
	return false
}

// MemberRole is a user's role within one group.
type MemberRole string

const (
	RoleAdmin     MemberRole = "admin"
	RoleModerator MemberRole = "moderator"
	RoleMember    MemberRole = "member"
)

func (r MemberRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleMember:
		return true
	}
	return false
}

// Group represents a chat room. Department and executive groups carry the
// department tag they mirror; at most one active group exists per
// (department kind, tag) pair and at most one general group overall.
type Group struct {
	ID          int       `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Kind        GroupKind `db:"kind" json:"kind"`
	Department  *string   `db:"department" json:"department,omitempty"`
	CreatedBy   int       `db:"created_by" json:"created_by"`
	AutoJoin    bool      `db:"auto_join" json:"auto_join"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	PhotoURL    *string   `db:"photo_url" json:"photo_url,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// GroupMember is the (group, user, role) membership row.
type GroupMember struct {
	GroupID  int        `db:"group_id" json:"group_id"`
	UserID   int        `db:"user_id" json:"user_id"`
	Role     MemberRole `db:"role" json:"role"`
	JoinedAt time.Time  `db:"joined_at" json:"joined_at"`
}

// GroupSummary is the group-list view for one caller: the group plus member
// count, unread count and last-message preview.
type GroupSummary struct {
	Group
	MemberCount   int        `db:"member_count" json:"member_count"`
	UnreadCount   int        `db:"unread_count" json:"unread_count"`
	LastMessage   *string    `db:"last_message" json:"last_message,omitempty"`
	LastMessageAt *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
}
