package database

// ChatRepository is the storage boundary consumed by the realtime core
// and the HTTP layer. Every method may fail; callers convert failures
// to typed errors rather than letting them corrupt in-memory state.
type ChatRepository interface {
	Ping() error

	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(userId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	ListAccountsExcept(userId int) ([]User, error)
	SetUserOnline(userId int, online bool) error

	SaveMessage(params SaveMessageParams) (int, error)
	GetMessageByID(messageId int) (Message, error)
	GetDirectMessages(userA, userB, limit int) ([]Message, error)
	GetGroupMessages(groupId, limit int) ([]Message, error)
	MarkMessagesRead(senderId, readerId int) (int, error)
	MarkGroupMessagesRead(groupId, readerId int) (int, error)
	UnreadCounts(userId int) (map[int]int, error)
	GroupUnreadCounts(userId int) (map[int]int, error)

	CreateGroup(params CreateGroupParams) (Group, error)
	GetGroupById(groupId int) (Group, error)
	ListGroupsForUser(userId int) ([]Group, error)
	AddGroupMember(groupId, userId int, role string) error
	RemoveGroupMember(groupId, userId int) error
	GetGroupMembers(groupId int) ([]GroupMember, error)
	GetUserRoleInGroup(groupId, userId int) (string, error)
	IsGroupMember(groupId, userId int) (bool, error)
}
