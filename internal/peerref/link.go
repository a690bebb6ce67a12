package peerref

import (
	"regexp"
	"strconv"
)

var privateLinkPattern = regexp.MustCompile(`^(?i:https?://)?(?i:(?:t|telegram)\.me)/c/([^/?#]+)/([^/?#]+)/?(?:[?#].*)?$`)

// ParseLink extracts the channel reference and message id from a private
// channel permalink (t.me/c/<channel_id>/<message_id>). Public username links
// and invite links are not recognized.
func ParseLink(link string) (Ref, int, bool) {
	m := privateLinkPattern.FindStringSubmatch(link)
	if m == nil {
		return Ref{}, 0, false
	}
	ref := Parse(m[1])
	if !ref.IsID() {
		return Ref{}, 0, false
	}
	if !allDigits(m[2]) {
		return Ref{}, 0, false
	}
	msgID, err := strconv.Atoi(m[2])
	if err != nil || msgID < 0 {
		return Ref{}, 0, false
	}
	return ref, msgID, true
}

// LinkChatID maps the bare channel id of a t.me/c link into the canonical id
// space. Ids that are already negative are returned unchanged.
func LinkChatID(ref Ref) int64 {
	if ref.ID > 0 {
		return -(ChannelIDOffset + ref.ID)
	}
	return ref.ID
}
