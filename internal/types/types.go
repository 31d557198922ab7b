package types

import (
	"time"
)

type User struct {
	Id             int       `json:"id"`
	Name           string    `json:"name,omitempty"`
	Username       string    `json:"username"`
	EmailAddress   string    `json:"email_address,omitempty"`
	Password       string    `json:"-"`
	ProfilePicture string    `json:"profile_picture,omitempty"`
	IsOnline       bool      `json:"is_online"`
	LastSeen       time.Time `json:"last_seen,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

type Group struct {
	Id           int       `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	GroupPicture string    `json:"group_picture,omitempty"`
	CreatedBy    int       `json:"created_by"`
	MemberCount  int       `json:"member_count,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type GroupMember struct {
	User
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at,omitempty"`
}

// Message is the wire-level view of a persisted message. Exactly one of
// ReceiverId/GroupId is non-zero. Status is derived from the read and
// delivered timestamps, never stored.
type Message struct {
	Id             int       `json:"id"`
	SenderId       int       `json:"sender_id"`
	ReceiverId     int       `json:"receiver_id,omitempty"`
	GroupId        int       `json:"group_id,omitempty"`
	Content        string    `json:"content"`
	Status         string    `json:"status"`
	SenderUsername string    `json:"sender_username,omitempty"`
	SenderName     string    `json:"sender_name,omitempty"`
	SenderPicture  string    `json:"sender_picture,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
)
