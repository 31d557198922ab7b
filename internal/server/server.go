package server

import (
	"context"
	"log"

	"github.com/parley-im/parley/internal/database"
	"github.com/parley-im/parley/internal/stats"
)

// ChatServer owns the realtime core: the connection registry, room
// membership, typing tracker, message dispatcher and read receipt
// coordinator. Connect and disconnect are serialized through the run
// loop; the remaining events are handled on the connections' read
// goroutines against the lock-guarded components.
type ChatServer struct {
	log        *log.Logger
	db         database.ChatRepository
	stats      stats.StatsProvider
	registry   *ConnectionRegistry
	membership *RoomMembership
	typing     *TypingTracker
	dispatcher *MessageDispatcher
	receipts   *ReadReceiptCoordinator

	RegisterChan   chan *Client
	deRegisterChan chan *Client
	stop           chan struct{}
	stopped        chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, statsUpdater stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:            logger,
		db:             db,
		stats:          statsUpdater,
		registry:       NewConnectionRegistry(db, logger),
		membership:     NewRoomMembership(db, logger),
		typing:         NewTypingTracker(DefaultTypingTimeout, logger),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
		done:           make(chan struct{}),
	}

	cs.dispatcher = &MessageDispatcher{
		registry:   cs.registry,
		membership: cs.membership,
		typing:     cs.typing,
		db:         db,
		stats:      statsUpdater,
		log:        logger,
	}
	cs.receipts = &ReadReceiptCoordinator{
		registry:   cs.registry,
		membership: cs.membership,
		db:         db,
		stats:      statsUpdater,
		log:        logger,
	}

	cs.typing.OnExpire(func(key RoomKey, userId int) {
		cs.broadcastTyping(key, userId, false)
	})

	for _, name := range []string{
		stats.ActiveConnections,
		stats.OnlineUsers,
		stats.MessagesSent,
		stats.TypingEvents,
		stats.ReadReceipts,
	} {
		statsUpdater.RegisterMetric(name)
	}

	return cs, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case c := <-cs.RegisterChan:
			cs.addClient(c)
		case c := <-cs.deRegisterChan:
			cs.removeClient(c)
		case <-cs.stop:
			close(cs.stopped)
			for _, c := range cs.registry.Clients() {
				c.stopClient()
			}
			close(cs.done)
			return
		}
	}
}

// RegisterClient hands a freshly upgraded connection to the run loop.
func (cs *ChatServer) RegisterClient(c *Client) {
	select {
	case cs.RegisterChan <- c:
	case <-cs.stopped:
		c.stopClient()
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) addClient(c *Client) {
	first := cs.registry.Register(c)
	cs.stats.Incr(stats.ActiveConnections)
	cs.log.Printf("user %d connected on %s", c.user.Id, c.id)

	if first {
		cs.stats.Incr(stats.OnlineUsers)
		cs.broadcastAll(newUserOnline(c.user.Id))
	}
}

// removeClient performs the unconditional disconnect cleanup: typing
// sweep, room membership, then the registry (which flips persisted
// presence on the last connection). None of the steps may be skipped
// on failure of another.
func (cs *ChatServer) removeClient(c *Client) {
	for _, key := range cs.typing.ClearUser(c.user.Id) {
		cs.broadcastTyping(key, c.user.Id, false)
	}

	cs.membership.LeaveAll(c)

	userId, last := cs.registry.Unregister(c.id)
	cs.stats.Decr(stats.ActiveConnections)
	cs.log.Printf("user %d disconnected from %s", c.user.Id, c.id)

	if last {
		cs.stats.Decr(stats.OnlineUsers)
		cs.broadcastAll(newUserOffline(userId))
	}
}

// dispatch routes an inbound event to its handler. The returned error,
// if any, is reported only to the originating connection.
func (cs *ChatServer) dispatch(msg *ClientMessage) *Error {
	switch {
	case msg.Join != nil:
		return cs.handleJoin(msg.client, msg.Join)
	case msg.Leave != nil:
		return cs.handleLeave(msg.client, msg.Leave)
	case msg.Send != nil:
		return cs.dispatcher.Dispatch(msg.client, msg.Send)
	case msg.Typing != nil:
		return cs.handleTyping(msg.client, msg.Typing)
	case msg.MarkRead != nil:
		return cs.receipts.MarkRead(msg.client, msg.MarkRead)
	default:
		return errInvalidInput("unknown event")
	}
}

func (cs *ChatServer) handleJoin(c *Client, req *JoinRequest) *Error {
	userId, ok := cs.registry.UserForConnection(c.id)
	if !ok {
		return errUnauthorized()
	}

	key, err := ParseRoomKey(req.ChatId)
	if err != nil {
		return errInvalidInput(err.Error())
	}

	allowed, aerr := cs.membership.CanJoin(key, userId)
	if aerr != nil {
		return aerr
	}
	if !allowed {
		return errForbidden("not authorized to join this chat")
	}

	cs.membership.Join(c, key)

	// the confirmation carries the canonical key; clients that joined
	// with an unsorted direct id update their local state from it
	c.queueMessage(newRoomJoined(key))

	return nil
}

func (cs *ChatServer) handleLeave(c *Client, req *LeaveRequest) *Error {
	userId, ok := cs.registry.UserForConnection(c.id)
	if !ok {
		return errUnauthorized()
	}

	key, err := ParseRoomKey(req.ChatId)
	if err != nil {
		return errInvalidInput(err.Error())
	}

	cs.membership.Leave(c, key)
	if cs.typing.Stop(key, userId) {
		cs.broadcastTyping(key, userId, false)
	}

	return nil
}

func (cs *ChatServer) handleTyping(c *Client, req *TypingRequest) *Error {
	userId, ok := cs.registry.UserForConnection(c.id)
	if !ok {
		return errUnauthorized()
	}
	if req.UserId != 0 && req.UserId != userId {
		// stale or spoofed indicator, drop it
		return nil
	}

	key, err := ParseRoomKey(req.ChatId)
	if err != nil {
		return errInvalidInput(err.Error())
	}

	allowed, aerr := cs.membership.CanJoin(key, userId)
	if aerr != nil {
		return aerr
	}
	if !allowed {
		// typing indicators from non-participants are dropped, not
		// errored; nothing observable leaks
		return nil
	}

	if req.IsTyping {
		if cs.typing.Start(key, userId) {
			cs.stats.Incr(stats.TypingEvents)
			cs.broadcastTyping(key, userId, true)
		}
	} else {
		if cs.typing.Stop(key, userId) {
			cs.broadcastTyping(key, userId, false)
		}
	}

	return nil
}

// broadcastTyping fans a typing indicator out to the room (excluding
// every connection of the typist) and to the personal channels of the
// other participants, exactly once per connection.
func (cs *ChatServer) broadcastTyping(key RoomKey, userId int, isTyping bool) {
	event := newTypingEvent(key, userId, isTyping)

	delivered := make(map[*Client]struct{})
	for _, rc := range cs.membership.Clients(key) {
		if rc.user.Id == userId {
			continue
		}
		delivered[rc] = struct{}{}
		rc.queueMessage(event)
	}

	members, err := cs.membership.MembersOf(key)
	if err != nil {
		cs.log.Printf("typing broadcast: %v", err)
		return
	}

	for _, memberId := range members {
		if memberId == userId {
			continue
		}
		for _, pc := range cs.registry.ConnectionsForUser(memberId) {
			if _, ok := delivered[pc]; ok {
				continue
			}
			delivered[pc] = struct{}{}
			pc.queueMessage(event)
		}
	}
}

func (cs *ChatServer) broadcastAll(msg *ServerMessage) {
	for _, c := range cs.registry.Clients() {
		c.queueMessage(msg)
	}
}

// Registry exposes presence lookups to the HTTP layer.
func (cs *ChatServer) Registry() *ConnectionRegistry {
	return cs.registry
}
