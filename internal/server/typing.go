package server

import (
	"log"
	"sync"
	"time"
)

// DefaultTypingTimeout is how long a typing indicator survives without
// a refreshing start event.
const DefaultTypingTimeout = 3 * time.Second

type typingEntry struct {
	lastActive time.Time
	timer      *time.Timer
	// gen guards against a stale timer firing concurrently with a
	// re-arm or a stop-then-start: the expiry callback only acts if
	// its generation still matches the entry's.
	gen uint64
}

// TypingTracker holds the ephemeral per-(room,user) typing state
// machine: Idle -> Typing on start, Typing -> Idle on stop, expiry,
// send, leave or disconnect.
type TypingTracker struct {
	mu      sync.Mutex
	rooms   map[string]map[int]*typingEntry
	timeout time.Duration
	// gen is monotonic across the whole tracker, so an entry recreated
	// after a stop never shares a generation with a timer armed for a
	// previous incarnation of the same (room, user).
	gen uint64
	// onExpire is invoked (without the lock held) when an indicator
	// times out, so the owner can broadcast typing=false.
	onExpire func(key RoomKey, userId int)
	log      *log.Logger
}

func NewTypingTracker(timeout time.Duration, logger *log.Logger) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}

	return &TypingTracker{
		rooms:   make(map[string]map[int]*typingEntry),
		timeout: timeout,
		log:     logger,
	}
}

func (t *TypingTracker) OnExpire(fn func(key RoomKey, userId int)) {
	t.onExpire = fn
}

// Start records typing activity for (room, user). Returns true on the
// Idle -> Typing transition; repeated starts within the window refresh
// the expiry but return false so callers don't broadcast duplicates.
func (t *TypingTracker) Start(key RoomKey, userId int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := key.String()
	users := t.rooms[id]
	if users == nil {
		users = make(map[int]*typingEntry)
		t.rooms[id] = users
	}

	entry, ok := users[userId]
	if ok {
		// refresh: cancel the outstanding timer and re-arm
		entry.timer.Stop()
		t.gen++
		entry.gen = t.gen
		entry.lastActive = time.Now()
		entry.timer = t.newExpiryTimer(key, userId, entry.gen)
		return false
	}

	t.gen++
	entry = &typingEntry{lastActive: time.Now(), gen: t.gen}
	entry.timer = t.newExpiryTimer(key, userId, entry.gen)
	users[userId] = entry

	return true
}

func (t *TypingTracker) newExpiryTimer(key RoomKey, userId int, gen uint64) *time.Timer {
	return time.AfterFunc(t.timeout, func() {
		t.expire(key, userId, gen)
	})
}

func (t *TypingTracker) expire(key RoomKey, userId int, gen uint64) {
	t.mu.Lock()
	entry, ok := t.rooms[key.String()][userId]
	if !ok || entry.gen != gen {
		// re-armed or stopped while the timer was firing
		t.mu.Unlock()
		return
	}
	t.removeLocked(key, userId)
	t.mu.Unlock()

	if t.onExpire != nil {
		t.onExpire(key, userId)
	}
}

// Stop clears the typing state for (room, user). Returns true if the
// user was typing, i.e. the caller should broadcast typing=false.
func (t *TypingTracker) Stop(key RoomKey, userId int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rooms[key.String()][userId]; !ok {
		return false
	}
	t.removeLocked(key, userId)

	return true
}

func (t *TypingTracker) removeLocked(key RoomKey, userId int) {
	id := key.String()
	users := t.rooms[id]
	if entry, ok := users[userId]; ok {
		entry.timer.Stop()
		delete(users, userId)
		if len(users) == 0 {
			delete(t.rooms, id)
		}
	}
}

// ClearUser sweeps the user's typing state from every room, returning
// the rooms that were cleared so the caller can broadcast typing=false
// for each. Used on disconnect; guarantees no orphaned timer fires
// afterward.
func (t *TypingTracker) ClearUser(userId int) []RoomKey {
	t.mu.Lock()
	defer t.mu.Unlock()

	var cleared []RoomKey
	for id, users := range t.rooms {
		if _, ok := users[userId]; !ok {
			continue
		}
		key, err := ParseRoomKey(id)
		if err != nil {
			// keys are canonicalized before storage; this cannot happen
			t.log.Printf("typing tracker holds malformed room key %q", id)
			continue
		}
		t.removeLocked(key, userId)
		cleared = append(cleared, key)
	}

	return cleared
}

// TypingUsers reports who is currently typing in the room.
func (t *TypingTracker) TypingUsers(key RoomKey) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.rooms[key.String()]
	ids := make([]int, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}

	return ids
}
