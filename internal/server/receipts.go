package server

import (
	"log"

	"github.com/parley-im/parley/internal/database"
	"github.com/parley-im/parley/internal/stats"
)

// ReadReceiptCoordinator persists read-state transitions and pushes
// the resulting receipts to the original sender's live connections.
type ReadReceiptCoordinator struct {
	registry   *ConnectionRegistry
	membership *RoomMembership
	db         database.ChatRepository
	stats      stats.StatsProvider
	log        *log.Logger
}

// MarkRead handles a mark_read request from c. Zero affected rows is a
// normal outcome and emits no notifications.
func (rc *ReadReceiptCoordinator) MarkRead(c *Client, req *MarkReadRequest) *Error {
	readerId, ok := rc.registry.UserForConnection(c.id)
	if !ok {
		return errUnauthorized()
	}
	if req.ReaderId != 0 && req.ReaderId != readerId {
		return errForbidden("reader_id does not match authenticated user")
	}

	if req.GroupId != 0 {
		return rc.markGroupRead(req.GroupId, readerId)
	}

	return rc.markDirectRead(req, readerId)
}

func (rc *ReadReceiptCoordinator) markDirectRead(req *MarkReadRequest, readerId int) *Error {
	if req.SenderId == 0 {
		return errInvalidInput("sender_id is required for direct read receipts")
	}

	count, err := rc.db.MarkMessagesRead(req.SenderId, readerId)
	if err != nil {
		return errStorage("failed to mark messages read", err)
	}
	if count == 0 {
		return nil
	}

	key := DirectKey(req.SenderId, readerId)
	event := newServerMessage()
	event.Read = &ReadEvent{
		ReaderId:   readerId,
		SenderId:   req.SenderId,
		ReceiverId: readerId,
		ChatId:     key.String(),
		Count:      count,
	}

	// notify the sender on both the personal channel and the room
	// channel; the redundancy covers races between joining the room
	// and personal-channel registration
	delivered := make(map[*Client]struct{})
	for _, sc := range rc.registry.ConnectionsForUser(req.SenderId) {
		delivered[sc] = struct{}{}
		sc.queueMessage(event)
	}
	for _, roomClient := range rc.membership.Clients(key) {
		if _, ok := delivered[roomClient]; ok {
			continue
		}
		roomClient.queueMessage(event)
	}

	rc.stats.Incr(stats.ReadReceipts)

	return nil
}

func (rc *ReadReceiptCoordinator) markGroupRead(groupId, readerId int) *Error {
	member, err := rc.db.IsGroupMember(groupId, readerId)
	if err != nil {
		return errStorage("failed to check group membership", err)
	}
	if !member {
		return errForbidden("not a member of this group")
	}

	count, err := rc.db.MarkGroupMessagesRead(groupId, readerId)
	if err != nil {
		return errStorage("failed to mark group messages read", err)
	}
	if count == 0 {
		return nil
	}

	key := GroupKey(groupId)
	members, merr := rc.membership.MembersOf(key)
	if merr != nil {
		// the read state is already persisted; notification fan-out
		// is best effort
		rc.log.Printf("group read receipt: %v", merr)
		return nil
	}

	event := newServerMessage()
	event.Read = &ReadEvent{
		ReaderId: readerId,
		GroupId:  groupId,
		ChatId:   key.String(),
		Count:    count,
	}

	for _, userId := range members {
		if userId == readerId {
			continue
		}
		for _, mc := range rc.registry.ConnectionsForUser(userId) {
			mc.queueMessage(event)
		}
	}

	rc.stats.Incr(stats.ReadReceipts)

	return nil
}
