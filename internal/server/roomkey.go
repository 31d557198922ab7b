package server

import (
	"fmt"
	"strconv"
	"strings"
)

const groupKeyPrefix = "group_"

type RoomKind int

const (
	DirectRoom RoomKind = iota
	GroupRoom
)

// RoomKey is the canonical identity of a conversation channel. Direct
// rooms are keyed by the two participant ids sorted ascending, so both
// sides always compute the same key regardless of who initiates. Group
// rooms are keyed by the group's numeric id.
type RoomKey struct {
	Kind    RoomKind
	User1   int
	User2   int
	GroupId int
}

func DirectKey(a, b int) RoomKey {
	if a > b {
		a, b = b, a
	}
	return RoomKey{Kind: DirectRoom, User1: a, User2: b}
}

func GroupKey(groupId int) RoomKey {
	return RoomKey{Kind: GroupRoom, GroupId: groupId}
}

func (k RoomKey) String() string {
	if k.Kind == GroupRoom {
		return groupKeyPrefix + strconv.Itoa(k.GroupId)
	}
	return fmt.Sprintf("%d_%d", k.User1, k.User2)
}

// HasUser reports whether userId is one of the two parties encoded in a
// direct key. Always false for group keys; group membership lives in
// the database, not the key.
func (k RoomKey) HasUser(userId int) bool {
	return k.Kind == DirectRoom && (k.User1 == userId || k.User2 == userId)
}

// ParseRoomKey parses and canonicalizes a client-supplied chat id.
// "7_3" and "3_7" both parse to the key "3_7". This is the single
// canonicalization point; every join/send/typing/read path goes
// through it and un-canonicalized keys are never stored.
func ParseRoomKey(chatId string) (RoomKey, error) {
	if rest, ok := strings.CutPrefix(chatId, groupKeyPrefix); ok {
		groupId, err := strconv.Atoi(rest)
		if err != nil || groupId <= 0 {
			return RoomKey{}, fmt.Errorf("invalid group chat id %q", chatId)
		}
		return GroupKey(groupId), nil
	}

	parts := strings.Split(chatId, "_")
	if len(parts) != 2 {
		return RoomKey{}, fmt.Errorf("invalid direct chat id %q", chatId)
	}

	a, err := strconv.Atoi(parts[0])
	if err != nil || a <= 0 {
		return RoomKey{}, fmt.Errorf("invalid direct chat id %q", chatId)
	}
	b, err := strconv.Atoi(parts[1])
	if err != nil || b <= 0 {
		return RoomKey{}, fmt.Errorf("invalid direct chat id %q", chatId)
	}
	if a == b {
		return RoomKey{}, fmt.Errorf("direct chat id %q refers to a single user", chatId)
	}

	return DirectKey(a, b), nil
}
