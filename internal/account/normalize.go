package account

import (
	"strings"

	"mcptelegram/internal/domain"
	"mcptelegram/internal/peerref"
)

// Classify maps a peer onto the dialog type shown to callers.
func Classify(p Peer) domain.DialogType {
	switch p.Kind {
	case peerref.Individual:
		if p.Bot {
			return domain.DialogBot
		}
		return domain.DialogUser
	case peerref.BasicGroup:
		return domain.DialogGroup
	default:
		if p.Megagroup {
			return domain.DialogGroup
		}
		return domain.DialogChannel
	}
}

func DialogFromPeer(p Peer, unread int) domain.Dialog {
	d := domain.Dialog{
		ID:                  p.ID,
		Title:               p.DisplayName(),
		Type:                Classify(p),
		UnreadMessagesCount: max(unread, 0),
	}
	switch p.Kind {
	case peerref.Individual:
		d.Username = p.Username
		d.PhoneNumber = p.Phone
	case peerref.Broadcast:
		d.Username = p.Username
	}
	return d
}

func ContactFromPeer(p Peer) domain.Contact {
	return domain.Contact{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Username:  p.Username,
		Phone:     p.Phone,
	}
}

// ContactsFromBook keeps the individual peers whose id is in the contact id
// set, in the order the users arrived. Ids without a user are dropped.
func ContactsFromBook(book ContactBook) []domain.Contact {
	ids := make(map[int64]struct{}, len(book.UserIDs))
	for _, id := range book.UserIDs {
		ids[id] = struct{}{}
	}
	out := make([]domain.Contact, 0, len(book.UserIDs))
	for _, user := range book.Users {
		if user.Kind != peerref.Individual {
			continue
		}
		if _, ok := ids[user.ID]; !ok {
			continue
		}
		out = append(out, ContactFromPeer(user))
	}
	return out
}

// Matches reports whether query is a case-insensitive substring of any
// non-empty field. An empty query matches everything.
func Matches(query string, fields ...string) bool {
	if query == "" {
		return true
	}
	needle := strings.ToLower(query)
	for _, field := range fields {
		if field == "" {
			continue
		}
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func contactMatches(query string, c domain.Contact) bool {
	return Matches(query, c.FirstName, c.LastName, c.Username, c.Phone)
}

func dialogMatches(query string, d domain.Dialog) bool {
	return Matches(query, d.Title, d.Username, d.PhoneNumber)
}

// MediaFromMessage returns nil unless the message carries a downloadable file.
func MediaFromMessage(m RawMessage) *domain.Media {
	if !m.HasMedia || m.File == nil {
		return nil
	}
	id := m.File.PhotoID
	if id == 0 {
		id = m.File.DocumentID
	}
	if id == 0 {
		id = int64(m.ID)
	}
	return &domain.Media{
		MediaID:  id,
		MimeType: m.File.MimeType,
		FileName: m.File.FileName,
		FileSize: m.File.Size,
	}
}

// MessageFromRaw builds the output record. senderID is nil for anonymous or
// channel-authored posts.
func MessageFromRaw(m RawMessage, senderID *int64) domain.Message {
	out := domain.Message{
		MessageID: m.ID,
		SenderID:  senderID,
		Outgoing:  m.Out,
		Media:     MediaFromMessage(m),
	}
	if m.Text != "" {
		text := m.Text
		out.Message = &text
	}
	if !m.Date.IsZero() {
		date := m.Date.UTC()
		out.Date = &date
	}
	return out
}
