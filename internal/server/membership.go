package server

import (
	"fmt"
	"log"
	"sync"

	"github.com/parley-im/parley/internal/database"
)

// RoomMembership tracks which connections have which rooms joined.
// Rooms are keyed by their canonical string key and reference
// connections weakly; a disconnect removes the connection from every
// room it joined.
type RoomMembership struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	db    database.ChatRepository
	log   *log.Logger
}

func NewRoomMembership(db database.ChatRepository, logger *log.Logger) *RoomMembership {
	return &RoomMembership{
		rooms: make(map[string]map[*Client]struct{}),
		db:    db,
		log:   logger,
	}
}

// CanJoin authorizes userId for the room. Direct rooms admit only the
// two parties encoded in the key. Group authorization is re-checked
// against the database on every call, never cached.
func (rm *RoomMembership) CanJoin(key RoomKey, userId int) (bool, *Error) {
	if key.Kind == DirectRoom {
		return key.HasUser(userId), nil
	}

	member, err := rm.db.IsGroupMember(key.GroupId, userId)
	if err != nil {
		return false, errStorage("failed to check group membership", err)
	}

	return member, nil
}

func (rm *RoomMembership) Join(c *Client, key RoomKey) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	id := key.String()
	clients := rm.rooms[id]
	if clients == nil {
		clients = make(map[*Client]struct{})
		rm.rooms[id] = clients
	}
	clients[c] = struct{}{}

	c.addRoom(key)
}

func (rm *RoomMembership) Leave(c *Client, key RoomKey) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.leaveLocked(c, key)
}

func (rm *RoomMembership) leaveLocked(c *Client, key RoomKey) {
	id := key.String()
	if clients, ok := rm.rooms[id]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(rm.rooms, id)
		}
	}

	c.delRoom(key)
}

// LeaveAll removes the connection from every room it joined and
// returns the keys it left, so the caller can cascade typing cleanup.
func (rm *RoomMembership) LeaveAll(c *Client) []RoomKey {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	keys := c.roomKeys()
	for _, key := range keys {
		rm.leaveLocked(c, key)
	}

	return keys
}

// Clients returns the connections currently joined to the room.
func (rm *RoomMembership) Clients(key RoomKey) []*Client {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room := rm.rooms[key.String()]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}

	return clients
}

func (rm *RoomMembership) IsJoined(c *Client, key RoomKey) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	_, ok := rm.rooms[key.String()][c]
	return ok
}

// MembersOf resolves the full participant set of a room, joined or
// not: both parties for a direct room, the current member list for a
// group. Used to pick personal-channel notification targets.
func (rm *RoomMembership) MembersOf(key RoomKey) ([]int, *Error) {
	if key.Kind == DirectRoom {
		return []int{key.User1, key.User2}, nil
	}

	members, err := rm.db.GetGroupMembers(key.GroupId)
	if err != nil {
		return nil, errStorage(fmt.Sprintf("failed to fetch members of group %d", key.GroupId), err)
	}

	ids := make([]int, len(members))
	for i, m := range members {
		ids[i] = m.UserId
	}

	return ids, nil
}
