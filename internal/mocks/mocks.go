package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"church-chat-service/internal/directory"
	"church-chat-service/internal/models"
	"church-chat-service/internal/repositories"
)

type GroupRepositoryMock struct {
	mock.Mock
}

func (m *GroupRepositoryMock) CreateGroupWithMembers(ctx context.Context, p repositories.CreateGroupParams, memberIDs []int) (models.Group, error) {
	args := m.Called(ctx, p, memberIDs)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) GetGroup(ctx context.Context, groupID int) (models.Group, error) {
	args := m.Called(ctx, groupID)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) ActiveGroupByKind(ctx context.Context, kind models.GroupKind, department *string) (models.Group, error) {
	args := m.Called(ctx, kind, department)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

func (m *GroupRepositoryMock) ListGroupSummaries(ctx context.Context, userID int) ([]models.GroupSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.GroupSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.GroupSummary)
	}
	return list, args.Error(1)
}

func (m *GroupRepositoryMock) IsMember(ctx context.Context, groupID int, userID int) (bool, error) {
	args := m.Called(ctx, groupID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *GroupRepositoryMock) MemberRole(ctx context.Context, groupID int, userID int) (models.MemberRole, error) {
	args := m.Called(ctx, groupID, userID)
	var role models.MemberRole
	if val := args.Get(0); val != nil {
		role = val.(models.MemberRole)
	}
	return role, args.Error(1)
}

func (m *GroupRepositoryMock) AddMember(ctx context.Context, groupID int, userID int, role models.MemberRole) error {
	args := m.Called(ctx, groupID, userID, role)
	return args.Error(0)
}

func (m *GroupRepositoryMock) RemoveMember(ctx context.Context, groupID int, userID int) error {
	args := m.Called(ctx, groupID, userID)
	return args.Error(0)
}

func (m *GroupRepositoryMock) RemoveDepartmentMembership(ctx context.Context, userID int, department string) error {
	args := m.Called(ctx, userID, department)
	return args.Error(0)
}

func (m *GroupRepositoryMock) UpdateMemberRole(ctx context.Context, groupID int, userID int, role models.MemberRole) error {
	args := m.Called(ctx, groupID, userID, role)
	return args.Error(0)
}

func (m *GroupRepositoryMock) CountAdmins(ctx context.Context, groupID int) (int, error) {
	args := m.Called(ctx, groupID)
	return args.Int(0), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, p repositories.CreateMessageParams) (models.Message, error) {
	args := m.Called(ctx, p)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListGroupMessages(ctx context.Context, groupID int, page int, limit int) ([]models.Message, error) {
	args := m.Called(ctx, groupID, page, limit)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) MarkGroupMessagesRead(ctx context.Context, groupID int, readerID int) error {
	args := m.Called(ctx, groupID, readerID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) ListConversations(ctx context.Context, userID int) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	var list []models.Conversation
	if val := args.Get(0); val != nil {
		list = val.([]models.Conversation)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) ListDirectMessages(ctx context.Context, userID int, otherID int) ([]models.Message, error) {
	args := m.Called(ctx, userID, otherID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *MessageRepositoryMock) MarkDirectMessagesRead(ctx context.Context, userID int, otherID int) error {
	args := m.Called(ctx, userID, otherID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID int, senderID int) error {
	args := m.Called(ctx, messageID, senderID)
	return args.Error(0)
}

type ReactionRepositoryMock struct {
	mock.Mock
}

func (m *ReactionRepositoryMock) ToggleReaction(ctx context.Context, messageID int, userID int, emoji string) (bool, error) {
	args := m.Called(ctx, messageID, userID, emoji)
	return args.Bool(0), args.Error(1)
}

type DirectoryMock struct {
	mock.Mock
}

func (m *DirectoryMock) GetUser(ctx context.Context, userID int) (directory.User, error) {
	args := m.Called(ctx, userID)
	var u directory.User
	if val := args.Get(0); val != nil {
		u = val.(directory.User)
	}
	return u, args.Error(1)
}

func (m *DirectoryMock) BulkUsers(ctx context.Context, ids []int) ([]directory.User, error) {
	args := m.Called(ctx, ids)
	var list []directory.User
	if val := args.Get(0); val != nil {
		list = val.([]directory.User)
	}
	return list, args.Error(1)
}

func (m *DirectoryMock) UserIDsInDepartment(ctx context.Context, department string) ([]int, error) {
	args := m.Called(ctx, department)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *DirectoryMock) ExecutiveIDsInDepartment(ctx context.Context, department string) ([]int, error) {
	args := m.Called(ctx, department)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *DirectoryMock) ApprovedUserIDs(ctx context.Context) ([]int, error) {
	args := m.Called(ctx)
	var ids []int
	if val := args.Get(0); val != nil {
		ids = val.([]int)
	}
	return ids, args.Error(1)
}

func (m *DirectoryMock) FirstPrivilegedUserID(ctx context.Context) (int, bool, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Bool(1), args.Error(2)
}

type SyncEngineMock struct {
	mock.Mock
}

func (m *SyncEngineMock) SyncUser(ctx context.Context, userID int) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *SyncEngineMock) CreateDepartmentGroup(ctx context.Context, creatorID int, name string, description string, dept string) (models.Group, error) {
	args := m.Called(ctx, creatorID, name, description, dept)
	var group models.Group
	if val := args.Get(0); val != nil {
		group = val.(models.Group)
	}
	return group, args.Error(1)
}

type MediaStoreMock struct {
	mock.Mock
}

func (m *MediaStoreMock) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	args := m.Called(ctx, filename, r)
	return args.String(0), args.Error(1)
}

func (m *MediaStoreMock) Remove(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}
