package database

import (
	"database/sql"
	"time"

	"github.com/parley-im/parley/internal/types"
)

type User struct {
	Id             int
	Name           string
	Username       string
	EmailAddress   string
	PasswordHash   string
	ProfilePicture string
	IsOnline       bool
	LastSeen       sql.NullTime
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Group struct {
	Id           int
	Name         string
	Description  string
	GroupPicture string
	CreatedBy    int
	MemberCount  int
	CreatedAt    time.Time
}

type GroupMember struct {
	UserId         int
	Username       string
	Name           string
	ProfilePicture string
	IsOnline       bool
	Role           string
	JoinedAt       time.Time
}

// Message rows join the sender's display fields so broadcast payloads
// reflect the persisted record. ReceiverId and GroupId are zero when
// unset; exactly one is set for any persisted row.
type Message struct {
	Id             int
	SenderId       int
	ReceiverId     int
	GroupId        int
	Content        string
	SenderUsername string
	SenderName     string
	SenderPicture  string
	Timestamp      time.Time
	DeliveredAt    sql.NullTime
	ReadAt         sql.NullTime
}

// Status derives the user-visible delivery state from the row's
// timestamps the way the history queries do.
func (m Message) Status() string {
	switch {
	case m.ReadAt.Valid:
		return types.MessageStatusRead
	case m.DeliveredAt.Valid:
		return types.MessageStatusDelivered
	default:
		return types.MessageStatusSent
	}
}

type CreateAccountParams struct {
	Name         string
	Username     string
	EmailAddress string
	PasswordHash string
	Phone        string
}

type SaveMessageParams struct {
	SenderId   int
	ReceiverId int
	GroupId    int
	Content    string
}

type CreateGroupParams struct {
	Name        string
	Description string
	CreatedBy   int
}

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)
