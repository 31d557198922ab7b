package server

import (
	"time"

	"github.com/parley-im/parley/internal/types"
)

// ClientMessage is the tagged union of inbound events. Exactly one
// pointer field is set per message; the read pump dispatches on it with
// an explicit switch. The connect handshake and disconnect are handled
// at the transport boundary, not as payload events.
type ClientMessage struct {
	Join     *JoinRequest     `json:"join,omitempty"`
	Leave    *LeaveRequest    `json:"leave,omitempty"`
	Send     *SendRequest     `json:"send_message,omitempty"`
	Typing   *TypingRequest   `json:"typing,omitempty"`
	MarkRead *MarkReadRequest `json:"mark_read,omitempty"`

	client *Client
}

type JoinRequest struct {
	ChatId string `json:"chat_id"`
}

type LeaveRequest struct {
	ChatId string `json:"chat_id"`
}

type SendRequest struct {
	SenderId   int    `json:"sender_id"`
	ReceiverId int    `json:"receiver_id,omitempty"`
	GroupId    int    `json:"group_id,omitempty"`
	Content    string `json:"content"`
	ChatId     string `json:"chat_id"`
}

type TypingRequest struct {
	ChatId   string `json:"chat_id"`
	UserId   int    `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type MarkReadRequest struct {
	SenderId   int    `json:"sender_id,omitempty"`
	ReceiverId int    `json:"receiver_id,omitempty"`
	ReaderId   int    `json:"reader_id"`
	GroupId    int    `json:"group_id,omitempty"`
	ChatId     string `json:"chat_id,omitempty"`
}

// ServerMessage is the tagged union of outbound events.
type ServerMessage struct {
	Timestamp time.Time `json:"timestamp"`

	RoomJoined   *RoomJoined          `json:"room_joined,omitempty"`
	Message      *MessageEvent        `json:"receive_message,omitempty"`
	Delivered    *Delivered           `json:"message_delivered,omitempty"`
	Notification *MessageNotification `json:"new_message_notification,omitempty"`
	Typing       *TypingEvent         `json:"user_typing,omitempty"`
	Read         *ReadEvent           `json:"messages_read,omitempty"`
	Online       *PresenceEvent       `json:"user_online,omitempty"`
	Offline      *PresenceEvent       `json:"user_offline,omitempty"`
	Error        *ErrorEvent          `json:"error,omitempty"`
}

type RoomJoined struct {
	ChatId string `json:"chat_id"`
	Status string `json:"status"`
}

// MessageEvent carries the persisted message plus the canonical room
// key it belongs to.
type MessageEvent struct {
	types.Message
	ChatId string `json:"chat_id"`
}

type Delivered struct {
	MessageId int    `json:"message_id"`
	ChatId    string `json:"chat_id"`
}

// MessageNotification is the chat-list level update delivered to
// recipients who are online but do not have the room joined.
type MessageNotification struct {
	ChatId     string    `json:"chat_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

type TypingEvent struct {
	UserId   int    `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
	ChatId   string `json:"chat_id"`
}

type ReadEvent struct {
	ReaderId   int    `json:"reader_id"`
	SenderId   int    `json:"sender_id,omitempty"`
	ReceiverId int    `json:"receiver_id,omitempty"`
	GroupId    int    `json:"group_id,omitempty"`
	ChatId     string `json:"chat_id,omitempty"`
	Count      int    `json:"count"`
}

type PresenceEvent struct {
	UserId int `json:"user_id"`
}

type ErrorEvent struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func newServerMessage() *ServerMessage {
	return &ServerMessage{Timestamp: Now()}
}

func newRoomJoined(key RoomKey) *ServerMessage {
	msg := newServerMessage()
	msg.RoomJoined = &RoomJoined{ChatId: key.String(), Status: "success"}
	return msg
}

func newMessageEvent(m types.Message, key RoomKey) *ServerMessage {
	msg := newServerMessage()
	msg.Message = &MessageEvent{Message: m, ChatId: key.String()}
	return msg
}

func newDelivered(messageId int, key RoomKey) *ServerMessage {
	msg := newServerMessage()
	msg.Delivered = &Delivered{MessageId: messageId, ChatId: key.String()}
	return msg
}

func newMessageNotification(m types.Message, key RoomKey) *ServerMessage {
	msg := newServerMessage()
	msg.Notification = &MessageNotification{
		ChatId:     key.String(),
		SenderName: m.SenderName,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
	}
	return msg
}

func newTypingEvent(key RoomKey, userId int, isTyping bool) *ServerMessage {
	msg := newServerMessage()
	msg.Typing = &TypingEvent{UserId: userId, IsTyping: isTyping, ChatId: key.String()}
	return msg
}

func newUserOnline(userId int) *ServerMessage {
	msg := newServerMessage()
	msg.Online = &PresenceEvent{UserId: userId}
	return msg
}

func newUserOffline(userId int) *ServerMessage {
	msg := newServerMessage()
	msg.Offline = &PresenceEvent{UserId: userId}
	return msg
}

func newErrorEvent(err *Error) *ServerMessage {
	msg := newServerMessage()
	msg.Error = &ErrorEvent{Kind: err.Kind, Message: err.Message}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
