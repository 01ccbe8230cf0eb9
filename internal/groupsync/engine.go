package groupsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"church-chat-service/internal/directory"
	"church-chat-service/internal/models"
	"church-chat-service/internal/observability"
	"church-chat-service/internal/repositories"
)

// Engine reconciles a user's department facts with chat-group membership
// rows. Every operation is idempotent and safe to call concurrently for
// different users touching the same department: group-creation races resolve
// through the (kind, department) unique constraint, and membership inserts
// are conflict-tolerant.
type Engine struct {
	groups repositories.GroupRepository
	dir    directory.Directory
	log    *zap.Logger
}

// New constructs an Engine.
func New(groups repositories.GroupRepository, dir directory.Directory, log *zap.Logger) *Engine {
	return &Engine{groups: groups, dir: dir, log: log}
}

// SyncUser converges everything for one user from the current directory
// snapshot: the general group, one group per department and one executive
// group per executive department.
func (e *Engine) SyncUser(ctx context.Context, userID int) error {
	user, err := e.dir.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("directory lookup: %w", err)
	}
	if !user.IsApproved {
		return nil
	}

	var errs []error
	if err := e.EnsureGeneralGroup(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if err := e.SyncUserDepartments(ctx, userID, user.Departments); err != nil {
		errs = append(errs, err)
	}
	if err := e.EnsureExecutiveGroups(ctx, userID, user.ExecutiveDepartments); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SyncUserDepartments guarantees an active department group exists for every
// department in the set and that the user is a member of each. Each
// department converges in its own transaction so unrelated departments never
// serialize on one another.
func (e *Engine) SyncUserDepartments(ctx context.Context, userID int, departments []string) error {
	var errs []error
	for _, dept := range dedupe(departments) {
		if err := e.syncDepartment(ctx, userID, dept); err != nil {
			errs = append(errs, fmt.Errorf("department %q: %w", dept, err))
			observability.IncSyncRun("error")
			continue
		}
		observability.IncSyncRun("ok")
	}
	return errors.Join(errs...)
}

// syncDepartment creates the department group on first sight, bulk-adding
// every current directory member of the department in that same transaction.
// Once the group exists only the triggering user is added; other members are
// untouched. Creation is the one point where a full directory scan is paid.
func (e *Engine) syncDepartment(ctx context.Context, userID int, dept string) error {
	group, err := e.groups.ActiveGroupByKind(ctx, models.GroupKindDepartment, &dept)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		memberIDs, dirErr := e.dir.UserIDsInDepartment(ctx, dept)
		if dirErr != nil {
			return dirErr
		}
		_, err = e.groups.CreateGroupWithMembers(ctx, repositories.CreateGroupParams{
			Name:        dept,
			Description: dept + " department group",
			Kind:        models.GroupKindDepartment,
			Department:  &dept,
			CreatedBy:   userID,
			CreatorRole: models.RoleMember,
			AutoJoin:    true,
		}, memberIDs)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrGroupExists) {
			return err
		}
		// Lost the creation race; re-read the winning row and fall through
		// to the single-member path.
		group, err = e.groups.ActiveGroupByKind(ctx, models.GroupKindDepartment, &dept)
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return e.groups.AddMember(ctx, group.ID, userID, models.RoleMember)
}

// RemoveStaleDepartments deletes the user's memberships for departments in
// oldSet that are absent from newSet. Only membership rows are removed; the
// groups stay, even when emptied.
func (e *Engine) RemoveStaleDepartments(ctx context.Context, userID int, oldSet []string, newSet []string) error {
	current := make(map[string]struct{}, len(newSet))
	for _, d := range newSet {
		current[d] = struct{}{}
	}

	var errs []error
	for _, dept := range dedupe(oldSet) {
		if _, ok := current[dept]; ok {
			continue
		}
		if err := e.groups.RemoveDepartmentMembership(ctx, userID, dept); err != nil {
			errs = append(errs, fmt.Errorf("department %q: %w", dept, err))
		}
	}
	return errors.Join(errs...)
}

// EnsureGeneralGroup lazily creates the single church-wide group, bulk-adding
// every approved user at creation. The creator is the first privileged
// directory entry, falling back to the triggering user. Subsequent calls add
// only the caller.
func (e *Engine) EnsureGeneralGroup(ctx context.Context, userID int) error {
	group, err := e.groups.ActiveGroupByKind(ctx, models.GroupKindGeneral, nil)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		creator, ok, dirErr := e.dir.FirstPrivilegedUserID(ctx)
		if dirErr != nil {
			return dirErr
		}
		if !ok {
			creator = userID
		}
		memberIDs, dirErr := e.dir.ApprovedUserIDs(ctx)
		if dirErr != nil {
			return dirErr
		}
		_, err = e.groups.CreateGroupWithMembers(ctx, repositories.CreateGroupParams{
			Name:        "General",
			Description: "Church-wide group",
			Kind:        models.GroupKindGeneral,
			CreatedBy:   creator,
			CreatorRole: models.RoleMember,
			AutoJoin:    true,
		}, memberIDs)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrGroupExists) {
			return err
		}
		group, err = e.groups.ActiveGroupByKind(ctx, models.GroupKindGeneral, nil)
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return e.groups.AddMember(ctx, group.ID, userID, models.RoleMember)
}

// EnsureExecutiveGroups applies the create/bulk-populate-once pattern per
// executive department, restricted to directory entries flagged executive
// in that department.
func (e *Engine) EnsureExecutiveGroups(ctx context.Context, userID int, execDepartments []string) error {
	var errs []error
	for _, dept := range dedupe(execDepartments) {
		if err := e.syncExecutive(ctx, userID, dept); err != nil {
			errs = append(errs, fmt.Errorf("executive %q: %w", dept, err))
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) syncExecutive(ctx context.Context, userID int, dept string) error {
	group, err := e.groups.ActiveGroupByKind(ctx, models.GroupKindExecutive, &dept)
	if errors.Is(err, repositories.ErrGroupNotFound) {
		memberIDs, dirErr := e.dir.ExecutiveIDsInDepartment(ctx, dept)
		if dirErr != nil {
			return dirErr
		}
		_, err = e.groups.CreateGroupWithMembers(ctx, repositories.CreateGroupParams{
			Name:        dept + " Executives",
			Description: "Executive group for the " + dept + " department",
			Kind:        models.GroupKindExecutive,
			Department:  &dept,
			CreatedBy:   userID,
			CreatorRole: models.RoleMember,
			AutoJoin:    true,
		}, memberIDs)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repositories.ErrGroupExists) {
			return err
		}
		group, err = e.groups.ActiveGroupByKind(ctx, models.GroupKindExecutive, &dept)
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return e.groups.AddMember(ctx, group.ID, userID, models.RoleMember)
}

// CreateDepartmentGroup handles explicit department-group creation from the
// REST gateway: rejects with ErrGroupExists if the tag already has an active
// group, otherwise creates it with the creator as admin and the current
// directory members of the department bulk-added.
func (e *Engine) CreateDepartmentGroup(ctx context.Context, creatorID int, name string, description string, dept string) (models.Group, error) {
	if _, err := e.groups.ActiveGroupByKind(ctx, models.GroupKindDepartment, &dept); err == nil {
		return models.Group{}, repositories.ErrGroupExists
	} else if !errors.Is(err, repositories.ErrGroupNotFound) {
		return models.Group{}, err
	}

	memberIDs, err := e.dir.UserIDsInDepartment(ctx, dept)
	if err != nil {
		return models.Group{}, err
	}
	return e.groups.CreateGroupWithMembers(ctx, repositories.CreateGroupParams{
		Name:        name,
		Description: description,
		Kind:        models.GroupKindDepartment,
		Department:  &dept,
		CreatedBy:   creatorID,
		CreatorRole: models.RoleAdmin,
		AutoJoin:    true,
	}, memberIDs)
}

const detachedSyncTimeout = 15 * time.Second

// Run converges a user in a detached goroutine with its own timeout. Profile
// updates call this so a sync failure can never fail the parent request;
// errors land in the log and the next group-list fetch retries.
func (e *Engine) Run(userID int, oldDepartments []string, newDepartments []string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), detachedSyncTimeout)
		defer cancel()

		if err := e.RemoveStaleDepartments(ctx, userID, oldDepartments, newDepartments); err != nil {
			e.log.Warn("stale department removal failed", zap.Int("user_id", userID), zap.Error(err))
		}
		if err := e.SyncUser(ctx, userID); err != nil {
			e.log.Warn("department sync failed", zap.Int("user_id", userID), zap.Error(err))
		}
	}()
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
