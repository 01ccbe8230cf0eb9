package groupsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"church-chat-service/internal/directory"
	"church-chat-service/internal/mocks"
	"church-chat-service/internal/models"
	"church-chat-service/internal/repositories"
)

func newEngine() (*Engine, *mocks.GroupRepositoryMock, *mocks.DirectoryMock) {
	groups := new(mocks.GroupRepositoryMock)
	dir := new(mocks.DirectoryMock)
	return New(groups, dir, zap.NewNop()), groups, dir
}

func deptPtr(s string) *string { return &s }

func TestSyncUserSkipsUnapproved(t *testing.T) {
	engine, groups, dir := newEngine()

	dir.On("GetUser", mock.Anything, 42).Return(directory.User{ID: 42, IsApproved: false}, nil).Once()

	require.NoError(t, engine.SyncUser(context.Background(), 42))
	groups.AssertNotCalled(t, "ActiveGroupByKind", mock.Anything, mock.Anything, mock.Anything)
	dir.AssertExpectations(t)
}

func TestSyncDepartmentExistingGroupAddsOnlyCaller(t *testing.T) {
	engine, groups, dir := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("media")).
		Return(models.Group{ID: 2, Kind: models.GroupKindDepartment}, nil).Once()
	groups.On("AddMember", mock.Anything, 2, 42, models.RoleMember).Return(nil).Once()

	require.NoError(t, engine.SyncUserDepartments(context.Background(), 42, []string{"media"}))
	groups.AssertExpectations(t)
	dir.AssertNotCalled(t, "UserIDsInDepartment", mock.Anything, mock.Anything)
}

func TestSyncDepartmentFirstSightBulkPopulates(t *testing.T) {
	engine, groups, dir := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("media")).
		Return(models.Group{}, repositories.ErrGroupNotFound).Once()
	dir.On("UserIDsInDepartment", mock.Anything, "media").Return([]int{7, 9, 42}, nil).Once()
	groups.On("CreateGroupWithMembers", mock.Anything, mock.MatchedBy(func(p repositories.CreateGroupParams) bool {
		return p.Kind == models.GroupKindDepartment && p.Department != nil && *p.Department == "media" &&
			p.CreatedBy == 42 && p.CreatorRole == models.RoleMember && p.AutoJoin
	}), []int{7, 9, 42}).Return(models.Group{ID: 3}, nil).Once()

	require.NoError(t, engine.SyncUserDepartments(context.Background(), 42, []string{"media"}))
	groups.AssertExpectations(t)
	dir.AssertExpectations(t)
	groups.AssertNotCalled(t, "AddMember", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncDepartmentIdempotentRerun(t *testing.T) {
	engine, groups, _ := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("media")).
		Return(models.Group{ID: 3}, nil).Twice()
	groups.On("AddMember", mock.Anything, 3, 42, models.RoleMember).Return(nil).Twice()

	require.NoError(t, engine.SyncUserDepartments(context.Background(), 42, []string{"media"}))
	require.NoError(t, engine.SyncUserDepartments(context.Background(), 42, []string{"media"}))
	groups.AssertExpectations(t)
}

func TestSyncDepartmentCreationRaceFallsBackToAddMember(t *testing.T) {
	engine, groups, dir := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("media")).
		Return(models.Group{}, repositories.ErrGroupNotFound).Once()
	dir.On("UserIDsInDepartment", mock.Anything, "media").Return([]int{42}, nil).Once()
	groups.On("CreateGroupWithMembers", mock.Anything, mock.Anything, []int{42}).
		Return(models.Group{}, repositories.ErrGroupExists).Once()
	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("media")).
		Return(models.Group{ID: 4}, nil).Once()
	groups.On("AddMember", mock.Anything, 4, 42, models.RoleMember).Return(nil).Once()

	require.NoError(t, engine.SyncUserDepartments(context.Background(), 42, []string{"media"}))
	groups.AssertExpectations(t)
}

func TestSyncUserDepartmentsDeduplicates(t *testing.T) {
	engine, groups, _ := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("media")).
		Return(models.Group{ID: 3}, nil).Once()
	groups.On("AddMember", mock.Anything, 3, 42, models.RoleMember).Return(nil).Once()

	require.NoError(t, engine.SyncUserDepartments(context.Background(), 42, []string{"media", "media", ""}))
	groups.AssertExpectations(t)
}

func TestRemoveStaleDepartmentsOnlyRemovesDropped(t *testing.T) {
	engine, groups, _ := newEngine()

	groups.On("RemoveDepartmentMembership", mock.Anything, 42, "choir").Return(nil).Once()

	err := engine.RemoveStaleDepartments(context.Background(), 42, []string{"choir", "media"}, []string{"media"})
	require.NoError(t, err)
	groups.AssertExpectations(t)
	groups.AssertNotCalled(t, "RemoveDepartmentMembership", mock.Anything, 42, "media")
}

func TestEnsureGeneralGroupCreatedByFirstPrivileged(t *testing.T) {
	engine, groups, dir := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindGeneral, (*string)(nil)).
		Return(models.Group{}, repositories.ErrGroupNotFound).Once()
	dir.On("FirstPrivilegedUserID", mock.Anything).Return(7, true, nil).Once()
	dir.On("ApprovedUserIDs", mock.Anything).Return([]int{1, 7, 42}, nil).Once()
	groups.On("CreateGroupWithMembers", mock.Anything, mock.MatchedBy(func(p repositories.CreateGroupParams) bool {
		return p.Kind == models.GroupKindGeneral && p.CreatedBy == 7 && p.Department == nil &&
			p.CreatorRole == models.RoleMember
	}), []int{1, 7, 42}).Return(models.Group{ID: 1}, nil).Once()

	require.NoError(t, engine.EnsureGeneralGroup(context.Background(), 42))
	groups.AssertExpectations(t)
	dir.AssertExpectations(t)
}

func TestEnsureGeneralGroupCreatorFallsBackToCaller(t *testing.T) {
	engine, groups, dir := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindGeneral, (*string)(nil)).
		Return(models.Group{}, repositories.ErrGroupNotFound).Once()
	dir.On("FirstPrivilegedUserID", mock.Anything).Return(0, false, nil).Once()
	dir.On("ApprovedUserIDs", mock.Anything).Return([]int{42}, nil).Once()
	groups.On("CreateGroupWithMembers", mock.Anything, mock.MatchedBy(func(p repositories.CreateGroupParams) bool {
		return p.CreatedBy == 42
	}), []int{42}).Return(models.Group{ID: 1}, nil).Once()

	require.NoError(t, engine.EnsureGeneralGroup(context.Background(), 42))
	groups.AssertExpectations(t)
}

func TestEnsureExecutiveGroupsRestrictedToExecutives(t *testing.T) {
	engine, groups, dir := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindExecutive, deptPtr("media")).
		Return(models.Group{}, repositories.ErrGroupNotFound).Once()
	dir.On("ExecutiveIDsInDepartment", mock.Anything, "media").Return([]int{7, 42}, nil).Once()
	groups.On("CreateGroupWithMembers", mock.Anything, mock.MatchedBy(func(p repositories.CreateGroupParams) bool {
		return p.Kind == models.GroupKindExecutive && p.Name == "media Executives" &&
			p.CreatorRole == models.RoleMember
	}), []int{7, 42}).Return(models.Group{ID: 6}, nil).Once()

	require.NoError(t, engine.EnsureExecutiveGroups(context.Background(), 42, []string{"media"}))
	groups.AssertExpectations(t)
	dir.AssertExpectations(t)
}

func TestCreateDepartmentGroupRejectsDuplicateTag(t *testing.T) {
	engine, groups, dir := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("ushering")).
		Return(models.Group{ID: 5}, nil).Once()

	_, err := engine.CreateDepartmentGroup(context.Background(), 1, "Ushers", "", "ushering")
	assert.ErrorIs(t, err, repositories.ErrGroupExists)
	dir.AssertNotCalled(t, "UserIDsInDepartment", mock.Anything, mock.Anything)
}

func TestCreateDepartmentGroupBulkAddsDirectoryMembers(t *testing.T) {
	engine, groups, dir := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("ushering")).
		Return(models.Group{}, repositories.ErrGroupNotFound).Once()
	dir.On("UserIDsInDepartment", mock.Anything, "ushering").Return([]int{2, 3}, nil).Once()
	groups.On("CreateGroupWithMembers", mock.Anything, mock.MatchedBy(func(p repositories.CreateGroupParams) bool {
		return p.Name == "Ushers" && p.CreatedBy == 1 && p.Kind == models.GroupKindDepartment &&
			p.CreatorRole == models.RoleAdmin
	}), []int{2, 3}).Return(models.Group{ID: 9, Name: "Ushers"}, nil).Once()

	group, err := engine.CreateDepartmentGroup(context.Background(), 1, "Ushers", "", "ushering")
	require.NoError(t, err)
	assert.Equal(t, 9, group.ID)
	groups.AssertExpectations(t)
}

// Full convergence for one user: general group exists, one department group
// exists, a second department is seen for the first time.
func TestSyncUserConvergesAllGroupKinds(t *testing.T) {
	engine, groups, dir := newEngine()

	dir.On("GetUser", mock.Anything, 42).Return(directory.User{
		ID:          42,
		IsApproved:  true,
		Departments: []string{"media", "choir"},
	}, nil).Once()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindGeneral, (*string)(nil)).
		Return(models.Group{ID: 1}, nil).Once()
	groups.On("AddMember", mock.Anything, 1, 42, models.RoleMember).Return(nil).Once()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("media")).
		Return(models.Group{ID: 2}, nil).Once()
	groups.On("AddMember", mock.Anything, 2, 42, models.RoleMember).Return(nil).Once()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("choir")).
		Return(models.Group{}, repositories.ErrGroupNotFound).Once()
	dir.On("UserIDsInDepartment", mock.Anything, "choir").Return([]int{42, 50}, nil).Once()
	groups.On("CreateGroupWithMembers", mock.Anything, mock.Anything, []int{42, 50}).
		Return(models.Group{ID: 3}, nil).Once()

	require.NoError(t, engine.SyncUser(context.Background(), 42))
	groups.AssertExpectations(t)
	dir.AssertExpectations(t)
}

// Engine-triggered creation never hands out the admin role; only explicit
// creation through CreateDepartmentGroup does.
func TestSyncCreatedGroupCreatorIsPlainMember(t *testing.T) {
	engine, groups, dir := newEngine()

	groups.On("ActiveGroupByKind", mock.Anything, models.GroupKindDepartment, deptPtr("choir")).
		Return(models.Group{}, repositories.ErrGroupNotFound).Once()
	dir.On("UserIDsInDepartment", mock.Anything, "choir").Return([]int{42}, nil).Once()
	groups.On("CreateGroupWithMembers", mock.Anything, mock.MatchedBy(func(p repositories.CreateGroupParams) bool {
		return p.CreatorRole == models.RoleMember
	}), []int{42}).Return(models.Group{ID: 8}, nil).Once()

	require.NoError(t, engine.SyncUserDepartments(context.Background(), 42, []string{"choir"}))
	groups.AssertExpectations(t)
	groups.AssertNotCalled(t, "CreateGroupWithMembers", mock.Anything, mock.MatchedBy(func(p repositories.CreateGroupParams) bool {
		return p.CreatorRole == models.RoleAdmin
	}), mock.Anything)
}
