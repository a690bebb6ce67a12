// Package peerref turns user-supplied peer identifiers into references the
// Telegram gateway can resolve, and owns the signed chat id space shared by
// users, basic groups and channels.
package peerref

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ChannelIDOffset shifts channel ids so they never collide with basic groups.
const ChannelIDOffset int64 = 1_000_000_000_000

var ErrInvalidPeer = errors.New("invalid peer id")

// Ref is either a numeric chat id or an opaque handle (username, phone, "me").
type Ref struct {
	ID     int64
	Handle string
	isID   bool
}

// Parse never fails. Digit strings (optionally signed) become ids, everything
// else, including digit strings that overflow int64, is kept as a handle.
func Parse(raw string) Ref {
	digits := strings.TrimPrefix(raw, "-")
	if digits != "" && allDigits(digits) {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return ID(id)
		}
	}
	return Ref{Handle: raw}
}

func ID(id int64) Ref {
	return Ref{ID: id, isID: true}
}

func (r Ref) IsID() bool {
	return r.isID
}

func (r Ref) String() string {
	if r.isID {
		return strconv.FormatInt(r.ID, 10)
	}
	return r.Handle
}

// IsSelf reports whether the handle addresses the current account.
func (r Ref) IsSelf() bool {
	if r.isID {
		return false
	}
	h := strings.ToLower(strings.TrimSpace(r.Handle))
	return h == "me" || h == "self"
}

// IsPhone reports whether the handle looks like an international phone number.
func (r Ref) IsPhone() bool {
	if r.isID {
		return false
	}
	h := strings.TrimSpace(r.Handle)
	if !strings.HasPrefix(h, "+") {
		return false
	}
	return Phone(h) != ""
}

// Phone strips everything but digits from a phone handle.
func Phone(handle string) string {
	var b strings.Builder
	for _, r := range handle {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return ""
		}
	}
	return b.String()
}

// Username normalizes "@name" and "t.me/name" forms to the bare username.
func (r Ref) Username() string {
	h := strings.TrimSpace(r.Handle)
	lower := strings.ToLower(h)
	for _, prefix := range []string{"https://", "http://"} {
		if strings.HasPrefix(lower, prefix) {
			h, lower = h[len(prefix):], lower[len(prefix):]
		}
	}
	for _, host := range []string{"t.me/", "telegram.me/"} {
		if strings.HasPrefix(lower, host) {
			h = h[len(host):]
			break
		}
	}
	h = strings.TrimPrefix(h, "@")
	return strings.TrimRight(h, "/")
}

type Kind int

const (
	Individual Kind = iota + 1
	BasicGroup
	Broadcast
)

func (k Kind) String() string {
	switch k {
	case Individual:
		return "individual"
	case BasicGroup:
		return "basic_group"
	case Broadcast:
		return "broadcast"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// CanonicalID maps a raw per-kind id into the shared signed id space.
func CanonicalID(kind Kind, rawID int64) (int64, error) {
	if rawID <= 0 {
		return 0, fmt.Errorf("%w: %s %d", ErrInvalidPeer, kind, rawID)
	}
	switch kind {
	case Individual:
		return rawID, nil
	case BasicGroup:
		return -rawID, nil
	case Broadcast:
		return -(ChannelIDOffset + rawID), nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %d", ErrInvalidPeer, int(kind))
	}
}

// Split is the inverse of CanonicalID.
func Split(id int64) (Kind, int64, bool) {
	switch {
	case id > 0:
		return Individual, id, true
	case id <= -ChannelIDOffset-1:
		return Broadcast, -id - ChannelIDOffset, true
	case id < 0:
		return BasicGroup, -id, true
	default:
		return 0, 0, false
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
