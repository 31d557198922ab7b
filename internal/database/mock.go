package database

import (
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(userId int) (User, error) {
	args := m.Called(userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) ListAccountsExcept(userId int) ([]User, error) {
	args := m.Called(userId)
	return args.Get(0).([]User), args.Error(1)
}
func (m *MockChatRepository) SetUserOnline(userId int, online bool) error {
	args := m.Called(userId, online)
	return args.Error(0)
}
func (m *MockChatRepository) SaveMessage(params SaveMessageParams) (int, error) {
	args := m.Called(params)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) GetMessageByID(messageId int) (Message, error) {
	args := m.Called(messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetDirectMessages(userA, userB, limit int) ([]Message, error) {
	args := m.Called(userA, userB, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) GetGroupMessages(groupId, limit int) ([]Message, error) {
	args := m.Called(groupId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) MarkMessagesRead(senderId, readerId int) (int, error) {
	args := m.Called(senderId, readerId)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) MarkGroupMessagesRead(groupId, readerId int) (int, error) {
	args := m.Called(groupId, readerId)
	return args.Int(0), args.Error(1)
}
func (m *MockChatRepository) UnreadCounts(userId int) (map[int]int, error) {
	args := m.Called(userId)
	return args.Get(0).(map[int]int), args.Error(1)
}
func (m *MockChatRepository) GroupUnreadCounts(userId int) (map[int]int, error) {
	args := m.Called(userId)
	return args.Get(0).(map[int]int), args.Error(1)
}
func (m *MockChatRepository) CreateGroup(params CreateGroupParams) (Group, error) {
	args := m.Called(params)
	return args.Get(0).(Group), args.Error(1)
}
func (m *MockChatRepository) GetGroupById(groupId int) (Group, error) {
	args := m.Called(groupId)
	return args.Get(0).(Group), args.Error(1)
}
func (m *MockChatRepository) ListGroupsForUser(userId int) ([]Group, error) {
	args := m.Called(userId)
	return args.Get(0).([]Group), args.Error(1)
}
func (m *MockChatRepository) AddGroupMember(groupId, userId int, role string) error {
	args := m.Called(groupId, userId, role)
	return args.Error(0)
}
func (m *MockChatRepository) RemoveGroupMember(groupId, userId int) error {
	args := m.Called(groupId, userId)
	return args.Error(0)
}
func (m *MockChatRepository) GetGroupMembers(groupId int) ([]GroupMember, error) {
	args := m.Called(groupId)
	return args.Get(0).([]GroupMember), args.Error(1)
}
func (m *MockChatRepository) GetUserRoleInGroup(groupId, userId int) (string, error) {
	args := m.Called(groupId, userId)
	return args.String(0), args.Error(1)
}
func (m *MockChatRepository) IsGroupMember(groupId, userId int) (bool, error) {
	args := m.Called(groupId, userId)
	return args.Bool(0), args.Error(1)
}
