package ws

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
)

const groupRoomPrefix = "group-"

// GroupRoom names the hub room mirroring a persisted group.
func GroupRoom(groupID int) string {
	return groupRoomPrefix + strconv.Itoa(groupID)
}

// parseGroupRoom extracts the group id from a group room name.
func parseGroupRoom(room string) (int, bool) {
	if !strings.HasPrefix(room, groupRoomPrefix) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimPrefix(room, groupRoomPrefix))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
