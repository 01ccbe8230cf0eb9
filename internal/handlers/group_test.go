package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"church-chat-service/internal/directory"
	"church-chat-service/internal/mocks"
	"church-chat-service/internal/models"
	"church-chat-service/internal/repositories"
)

func setupGroupRouter(handler *GroupHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.GET("/groups", handler.ListGroups)
	r.POST("/groups", handler.CreateGroup)
	r.POST("/groups/:group_id/members", handler.AddMember)
	r.DELETE("/groups/:group_id/members/:user_id", handler.RemoveMember)
	r.PATCH("/groups/:group_id/members/:user_id/role", handler.UpdateMemberRole)
	r.POST("/groups/:group_id/leave", handler.LeaveGroup)
	return r
}

func privilegedUser(id int) directory.User {
	return directory.User{ID: id, FullName: "Pastor Jane", IsApproved: true, Roles: []string{"pastor"}}
}

func plainUser(id int) directory.User {
	return directory.User{ID: id, FullName: "Member Bob", IsApproved: true}
}

func TestListGroupsSyncsBeforeListing(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	sync := new(mocks.SyncEngineMock)
	handler := NewGroupHandler(groups, new(mocks.DirectoryMock), sync, nil, zap.NewNop())
	router := setupGroupRouter(handler)

	sync.On("SyncUser", mock.Anything, 1).Return(nil).Once()
	groups.On("ListGroupSummaries", mock.Anything, 1).
		Return([]models.GroupSummary{{Group: models.Group{ID: 3, Name: "Choir"}, MemberCount: 12}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	sync.AssertExpectations(t)
	groups.AssertExpectations(t)
}

func TestListGroupsServedWhenSyncFails(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	sync := new(mocks.SyncEngineMock)
	handler := NewGroupHandler(groups, new(mocks.DirectoryMock), sync, nil, zap.NewNop())
	router := setupGroupRouter(handler)

	sync.On("SyncUser", mock.Anything, 1).Return(assert.AnError).Once()
	groups.On("ListGroupSummaries", mock.Anything, 1).Return([]models.GroupSummary{}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	sync.AssertExpectations(t)
	groups.AssertExpectations(t)
}

func TestCreateGroupRequiresPrivilegedRole(t *testing.T) {
	dir := new(mocks.DirectoryMock)
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), dir, new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	dir.On("GetUser", mock.Anything, 1).Return(plainUser(1), nil).Once()

	body := bytes.NewBufferString(`{"name":"Side Chat","type":"private"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	dir.AssertExpectations(t)
}

func TestCreateGroupRejectsUnknownKind(t *testing.T) {
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), new(mocks.DirectoryMock), new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	body := bytes.NewBufferString(`{"name":"x","type":"broadcast"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDepartmentGroupSuccess(t *testing.T) {
	dir := new(mocks.DirectoryMock)
	sync := new(mocks.SyncEngineMock)
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), dir, sync, nil, zap.NewNop())
	router := setupGroupRouter(handler)

	dir.On("GetUser", mock.Anything, 1).Return(privilegedUser(1), nil).Once()
	sync.On("CreateDepartmentGroup", mock.Anything, 1, "Ushers", "dept chat", "ushering").
		Return(models.Group{ID: 9, Name: "Ushers"}, nil).Once()

	body := bytes.NewBufferString(`{"name":"Ushers","description":"dept chat","type":"department","department":"ushering"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.EqualValues(t, 9, resp["group_id"])
	dir.AssertExpectations(t)
	sync.AssertExpectations(t)
}

func TestCreateDepartmentGroupDuplicateTag(t *testing.T) {
	dir := new(mocks.DirectoryMock)
	sync := new(mocks.SyncEngineMock)
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), dir, sync, nil, zap.NewNop())
	router := setupGroupRouter(handler)

	dir.On("GetUser", mock.Anything, 1).Return(privilegedUser(1), nil).Once()
	sync.On("CreateDepartmentGroup", mock.Anything, 1, "Ushers 2", "", "ushering").
		Return(models.Group{}, repositories.ErrGroupExists).Once()

	body := bytes.NewBufferString(`{"name":"Ushers 2","type":"department","department":"ushering"}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	sync.AssertExpectations(t)
}

func TestCreatePrivateGroupRejectsUnknownMembers(t *testing.T) {
	dir := new(mocks.DirectoryMock)
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), dir, new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	dir.On("GetUser", mock.Anything, 1).Return(privilegedUser(1), nil).Once()
	dir.On("BulkUsers", mock.Anything, []int{2, 3}).Return([]directory.User{plainUser(2)}, nil).Once()

	body := bytes.NewBufferString(`{"name":"Planning","type":"private","member_ids":[2,3]}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	dir.AssertExpectations(t)
}

func TestCreatePrivateGroupSuccess(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	dir := new(mocks.DirectoryMock)
	handler := NewGroupHandler(groups, dir, new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	dir.On("GetUser", mock.Anything, 1).Return(privilegedUser(1), nil).Once()
	dir.On("BulkUsers", mock.Anything, []int{2}).Return([]directory.User{plainUser(2)}, nil).Once()
	groups.On("CreateGroupWithMembers", mock.Anything, repositories.CreateGroupParams{
		Name: "Planning", Kind: models.GroupKindPrivate, CreatedBy: 1, CreatorRole: models.RoleAdmin,
	}, []int{2}).Return(models.Group{ID: 14}, nil).Once()

	body := bytes.NewBufferString(`{"name":"Planning","type":"private","member_ids":[2]}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	groups.AssertExpectations(t)
}

func TestAddMemberForbiddenForPlainMember(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	dir := new(mocks.DirectoryMock)
	handler := NewGroupHandler(groups, dir, new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	dept := "ushering"
	groups.On("GetGroup", mock.Anything, 5).
		Return(models.Group{ID: 5, Kind: models.GroupKindDepartment, Department: &dept}, nil).Once()
	groups.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleMember, nil).Once()
	dir.On("GetUser", mock.Anything, 1).Return(plainUser(1), nil).Once()

	body := bytes.NewBufferString(`{"user_id":7}`)
	req := httptest.NewRequest(http.MethodPost, "/groups/5/members", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groups.AssertExpectations(t)
	dir.AssertExpectations(t)
}

func TestAddMemberAllowedForDepartmentExecutive(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	dir := new(mocks.DirectoryMock)
	handler := NewGroupHandler(groups, dir, new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	dept := "ushering"
	exec := plainUser(1)
	exec.ExecutiveDepartments = []string{"ushering"}

	groups.On("GetGroup", mock.Anything, 5).
		Return(models.Group{ID: 5, Kind: models.GroupKindDepartment, Department: &dept}, nil).Once()
	groups.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleMember, repositories.ErrNotMember).Once()
	dir.On("GetUser", mock.Anything, 1).Return(exec, nil).Once()
	dir.On("GetUser", mock.Anything, 7).Return(plainUser(7), nil).Once()
	groups.On("AddMember", mock.Anything, 5, 7, models.RoleMember).Return(nil).Once()

	body := bytes.NewBufferString(`{"user_id":7}`)
	req := httptest.NewRequest(http.MethodPost, "/groups/5/members", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groups.AssertExpectations(t)
	dir.AssertExpectations(t)
}

func TestRemoveMemberSelfRejected(t *testing.T) {
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), new(mocks.DirectoryMock), new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	req := httptest.NewRequest(http.MethodDelete, "/groups/5/members/1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeaveGroupSoleAdminBlocked(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groups, new(mocks.DirectoryMock), new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	groups.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleAdmin, nil).Once()
	groups.On("CountAdmins", mock.Anything, 5).Return(1, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	groups.AssertExpectations(t)
}

func TestLeaveGroupAdminWithPeerLeaves(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groups, new(mocks.DirectoryMock), new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	groups.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleAdmin, nil).Once()
	groups.On("CountAdmins", mock.Anything, 5).Return(2, nil).Once()
	groups.On("RemoveMember", mock.Anything, 5, 1).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groups.AssertExpectations(t)
}

func TestLeaveGroupNotMember(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groups, new(mocks.DirectoryMock), new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	groups.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleMember, repositories.ErrNotMember).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/5/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groups.AssertExpectations(t)
}

func TestUpdateMemberRoleAdminOnly(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groups, new(mocks.DirectoryMock), new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	groups.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleMember, nil).Once()

	body := bytes.NewBufferString(`{"role":"admin"}`)
	req := httptest.NewRequest(http.MethodPatch, "/groups/5/members/7/role", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groups.AssertExpectations(t)
}

func TestUpdateMemberRolePromotes(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groups, new(mocks.DirectoryMock), new(mocks.SyncEngineMock), nil, zap.NewNop())
	router := setupGroupRouter(handler)

	groups.On("MemberRole", mock.Anything, 5, 1).Return(models.RoleAdmin, nil).Once()
	groups.On("UpdateMemberRole", mock.Anything, 5, 7, models.RoleAdmin).Return(nil).Once()

	body := bytes.NewBufferString(`{"role":"admin"}`)
	req := httptest.NewRequest(http.MethodPatch, "/groups/5/members/7/role", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groups.AssertExpectations(t)
}
