package server

import (
	"log"
	"strings"

	"github.com/parley-im/parley/internal/database"
	"github.com/parley-im/parley/internal/stats"
	"github.com/parley-im/parley/internal/types"
)

// MessageDispatcher validates, persists and fans out messages. It is
// the single dispatch point per request, so per-room delivery order
// matches persistence order.
type MessageDispatcher struct {
	registry   *ConnectionRegistry
	membership *RoomMembership
	typing     *TypingTracker
	db         database.ChatRepository
	stats      stats.StatsProvider
	log        *log.Logger
}

// Dispatch handles a send_message request from c. Any failure before
// persistence is reported only to the sender; after a successful
// persist, per-connection delivery is best effort and never rolls the
// message back.
func (d *MessageDispatcher) Dispatch(c *Client, req *SendRequest) *Error {
	senderId, ok := d.registry.UserForConnection(c.id)
	if !ok {
		return errUnauthorized()
	}
	// the connection's authenticated user is authoritative; a
	// mismatching sender_id is a spoof attempt
	if req.SenderId != 0 && req.SenderId != senderId {
		return errForbidden("sender_id does not match authenticated user")
	}

	if strings.TrimSpace(req.Content) == "" {
		return errInvalidInput("message content cannot be empty")
	}
	if (req.ReceiverId == 0) == (req.GroupId == 0) {
		return errInvalidInput("exactly one of receiver_id and group_id must be set")
	}

	var key RoomKey
	if req.GroupId != 0 {
		member, err := d.db.IsGroupMember(req.GroupId, senderId)
		if err != nil {
			return errStorage("failed to check group membership", err)
		}
		if !member {
			return errForbidden("not a member of this group")
		}
		key = GroupKey(req.GroupId)
	} else {
		// a self-pair has no canonical room; the message would be
		// unreachable over the socket
		if req.ReceiverId == senderId {
			return errInvalidInput("receiver_id cannot be the sender")
		}
		key = DirectKey(senderId, req.ReceiverId)
	}

	messageId, err := d.db.SaveMessage(database.SaveMessageParams{
		SenderId:   senderId,
		ReceiverId: req.ReceiverId,
		GroupId:    req.GroupId,
		Content:    req.Content,
	})
	if err != nil {
		return errStorage("failed to save message", err)
	}

	// reload the canonical record so the broadcast reflects the
	// persisted row, not client-supplied metadata
	dbMsg, err := d.db.GetMessageByID(messageId)
	if err != nil {
		return errStorage("failed to load saved message", err)
	}

	// a send implicitly ends the sender's typing in that room
	d.typing.Stop(key, senderId)

	d.fanout(key, wireMessage(dbMsg))

	c.queueMessage(newDelivered(messageId, key))
	d.stats.Incr(stats.MessagesSent)

	return nil
}

// fanout delivers the message event exactly once to the union of the
// room's joined connections and every live connection of the
// recipients, then sends chat-list notifications to recipient
// connections that do not have the room joined.
func (d *MessageDispatcher) fanout(key RoomKey, m types.Message) {
	event := newMessageEvent(m, key)

	delivered := make(map[*Client]struct{})
	for _, rc := range d.membership.Clients(key) {
		delivered[rc] = struct{}{}
		rc.queueMessage(event)
	}

	notification := newMessageNotification(m, key)
	for _, userId := range d.recipients(key, m.SenderId) {
		// the sender's other devices stay in sync but are never
		// "notified" of their own message
		notify := userId != m.SenderId
		for _, pc := range d.registry.ConnectionsForUser(userId) {
			if _, ok := delivered[pc]; ok {
				continue
			}
			delivered[pc] = struct{}{}
			pc.queueMessage(event)
			if notify {
				pc.queueMessage(notification)
			}
		}
	}
}

// recipients are the users entitled to personal-channel delivery: both
// parties for a direct message (the sender included, so their other
// devices stay in sync), and every current member except the sender
// for a group message.
func (d *MessageDispatcher) recipients(key RoomKey, senderId int) []int {
	if key.Kind == DirectRoom {
		return []int{key.User1, key.User2}
	}

	members, err := d.membership.MembersOf(key)
	if err != nil {
		// the message is already persisted; notification fan-out is
		// best effort
		d.log.Printf("fanout: %v", err)
		return nil
	}

	recipients := members[:0]
	for _, id := range members {
		if id != senderId {
			recipients = append(recipients, id)
		}
	}

	return recipients
}

func wireMessage(m database.Message) types.Message {
	return types.Message{
		Id:             m.Id,
		SenderId:       m.SenderId,
		ReceiverId:     m.ReceiverId,
		GroupId:        m.GroupId,
		Content:        m.Content,
		Status:         m.Status(),
		SenderUsername: m.SenderUsername,
		SenderName:     m.SenderName,
		SenderPicture:  m.SenderPicture,
		Timestamp:      m.Timestamp,
	}
}
