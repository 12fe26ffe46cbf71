package lcore

import (
	"encoding/json"
	"strconv"

	"go.uber.org/zap"
)

// NumaSocket identifies a NUMA socket, or any socket when it is the zero value.
type NumaSocket struct {
	id    int
	valid bool
}

// NumaSocketFromID returns a specific socket, or any socket if id is negative.
func NumaSocketFromID(id int) NumaSocket {
	if id < 0 {
		return NumaSocket{}
	}
	return NumaSocket{id: id, valid: true}
}

// ID returns the socket ID, or -1 for any socket.
func (socket NumaSocket) ID() int {
	if !socket.valid {
		return -1
	}
	return socket.id
}

// IsAny reports whether this is the any socket.
func (socket NumaSocket) IsAny() bool {
	return !socket.valid
}

// Match reports whether two sockets are compatible; any socket matches every socket.
func (socket NumaSocket) Match(other NumaSocket) bool {
	return !socket.valid || !other.valid || socket.id == other.id
}

func (socket NumaSocket) String() string {
	if !socket.valid {
		return "any"
	}
	return strconv.Itoa(socket.id)
}

// MarshalJSON encodes the socket ID, or null for any socket.
func (socket NumaSocket) MarshalJSON() ([]byte, error) {
	if !socket.valid {
		return []byte("null"), nil
	}
	return json.Marshal(socket.id)
}

// UnmarshalJSON decodes a socket ID; null and negative numbers mean any socket.
func (socket *NumaSocket) UnmarshalJSON(j []byte) error {
	var id *int
	if e := json.Unmarshal(j, &id); e != nil {
		return e
	}
	if id == nil {
		*socket = NumaSocket{}
	} else {
		*socket = NumaSocketFromID(*id)
	}
	return nil
}

// ZapField returns a zap.Field for logging.
func (socket NumaSocket) ZapField(key string) zap.Field {
	return zap.Stringer(key, socket)
}

// WithNumaSocket is implemented by threads that prefer CPUs on a NUMA socket.
type WithNumaSocket interface {
	NumaSocket() NumaSocket
}
