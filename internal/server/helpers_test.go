package server

import (
	"testing"
	"time"

	"github.com/parley-im/parley/internal/testutil"
	"github.com/parley-im/parley/internal/types"
	"github.com/stretchr/testify/require"
	"github.com/teris-io/shortid"
)

func newTestClient(t *testing.T, userId int) *Client {
	t.Helper()

	id, err := shortid.Generate()
	require.NoError(t, err)

	return &Client{
		id:    id,
		log:   testutil.TestLogger(t),
		user:  types.User{Id: userId, Username: "user"},
		send:  make(chan *ServerMessage, 256),
		rooms: make(map[string]RoomKey),
		stop:  make(chan struct{}),
	}
}

// drainEvents empties the client's send buffer without blocking.
func drainEvents(c *Client) []*ServerMessage {
	var events []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			events = append(events, msg)
		default:
			return events
		}
	}
}

// waitEvent blocks until the client receives an event or the timeout
// elapses.
func waitEvent(t *testing.T, c *Client, timeout time.Duration) *ServerMessage {
	t.Helper()

	select {
	case msg := <-c.send:
		return msg
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return nil
	}
}
