package server

import (
	"log"
	"sync"

	"github.com/parley-im/parley/internal/database"
)

// ConnectionRegistry is the source of truth for which connections
// belong to which users. A user is online iff they have at least one
// registered connection. The registry is the only component that
// writes the persisted online flag, and it does so exactly on the
// 0->1 and 1->0 transitions of the user's connection count.
type ConnectionRegistry struct {
	mu    sync.Mutex
	conns map[string]*Client
	users map[int]map[string]*Client
	db    database.ChatRepository
	log   *log.Logger
}

func NewConnectionRegistry(db database.ChatRepository, logger *log.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*Client),
		users: make(map[int]map[string]*Client),
		db:    db,
		log:   logger,
	}
}

// Register records the connection as belonging to its user. Idempotent
// for a connection that is already registered. Returns true when this
// is the user's first live connection, i.e. presence flipped online.
func (r *ConnectionRegistry) Register(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.id]; ok {
		return false
	}
	r.conns[c.id] = c

	set := r.users[c.user.Id]
	first := len(set) == 0
	if set == nil {
		set = make(map[string]*Client)
		r.users[c.user.Id] = set
	}
	set[c.id] = c

	if first {
		// presence flip failures are logged, never surfaced; in-memory
		// state stays authoritative
		if err := r.db.SetUserOnline(c.user.Id, true); err != nil {
			r.log.Printf("set user %d online: %v", c.user.Id, err)
		}
	}

	return first
}

// Unregister removes the connection. No-op for unknown connection ids.
// Returns the owning user and whether this was the user's last live
// connection (presence flipped offline).
func (r *ConnectionRegistry) Unregister(connId string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connId]
	if !ok {
		return 0, false
	}
	delete(r.conns, connId)

	userId := c.user.Id
	set := r.users[userId]
	delete(set, connId)
	if len(set) > 0 {
		return userId, false
	}
	delete(r.users, userId)

	if err := r.db.SetUserOnline(userId, false); err != nil {
		r.log.Printf("set user %d offline: %v", userId, err)
	}

	return userId, true
}

// ConnectionsForUser returns every live connection of the user. Empty
// for offline or unknown users; that is not an error.
func (r *ConnectionRegistry) ConnectionsForUser(userId int) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*Client, 0, len(r.users[userId]))
	for _, c := range r.users[userId] {
		clients = append(clients, c)
	}

	return clients
}

func (r *ConnectionRegistry) UserForConnection(connId string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connId]
	if !ok {
		return 0, false
	}

	return c.user.Id, true
}

// Clients snapshots every registered connection, for presence
// broadcasts.
func (r *ConnectionRegistry) Clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		clients = append(clients, c)
	}

	return clients
}
