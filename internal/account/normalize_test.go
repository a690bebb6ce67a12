package account

import (
	"testing"
	"time"

	"mcptelegram/internal/domain"
	"mcptelegram/internal/peerref"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		peer Peer
		want domain.DialogType
	}{
		{"bot", Peer{Kind: peerref.Individual, Bot: true}, domain.DialogBot},
		{"user", Peer{Kind: peerref.Individual}, domain.DialogUser},
		{"basic group", Peer{Kind: peerref.BasicGroup}, domain.DialogGroup},
		{"megagroup", Peer{Kind: peerref.Broadcast, Megagroup: true}, domain.DialogGroup},
		{"channel", Peer{Kind: peerref.Broadcast}, domain.DialogChannel},
	}
	for _, tc := range cases {
		if got := Classify(tc.peer); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestDialogFromPeerFieldsByKind(t *testing.T) {
	user := DialogFromPeer(Peer{
		Kind:      peerref.Individual,
		ID:        42,
		FirstName: "Alice",
		LastName:  "Smith",
		Username:  "alice",
		Phone:     "15550001",
	}, 3)
	if user.Title != "Alice Smith" || user.Username != "alice" || user.PhoneNumber != "15550001" {
		t.Fatalf("unexpected user dialog: %+v", user)
	}
	if user.UnreadMessagesCount != 3 || user.Type != domain.DialogUser {
		t.Fatalf("unexpected user dialog: %+v", user)
	}

	group := DialogFromPeer(Peer{Kind: peerref.BasicGroup, ID: -7, Title: "Family", Username: "ignored"}, 0)
	if group.Username != "" || group.PhoneNumber != "" || group.Title != "Family" {
		t.Fatalf("basic groups must not expose username or phone: %+v", group)
	}

	channel := DialogFromPeer(Peer{Kind: peerref.Broadcast, ID: -1000000000009, Title: "News", Username: "news", Phone: "x"}, -5)
	if channel.Username != "news" || channel.PhoneNumber != "" {
		t.Fatalf("unexpected channel dialog: %+v", channel)
	}
	if channel.UnreadMessagesCount != 0 {
		t.Fatalf("expected negative unread to clamp to 0, got %d", channel.UnreadMessagesCount)
	}
}

func TestContactsFromBookIntersects(t *testing.T) {
	book := ContactBook{
		UserIDs: []int64{1, 2, 99},
		Users: []Peer{
			{Kind: peerref.Individual, ID: 1, FirstName: "Ann"},
			{Kind: peerref.Individual, ID: 3, FirstName: "Not a contact"},
			{Kind: peerref.Individual, ID: 2, FirstName: "Bob", Phone: "123"},
		},
	}
	contacts := ContactsFromBook(book)
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d: %+v", len(contacts), contacts)
	}
	if contacts[0].ID != 1 || contacts[1].ID != 2 || contacts[1].Phone != "123" {
		t.Fatalf("unexpected contacts: %+v", contacts)
	}
}

func TestMatches(t *testing.T) {
	if !Matches("", "anything") || !Matches("") {
		t.Fatal("expected empty query to match everything")
	}
	if !Matches("ALICE", "", "alice smith") {
		t.Fatal("expected case-insensitive match")
	}
	if Matches("bob", "", "alice smith", "") {
		t.Fatal("unexpected match")
	}
}

func TestMediaFromMessage(t *testing.T) {
	if MediaFromMessage(RawMessage{ID: 1, HasMedia: true}) != nil {
		t.Fatal("expected no media without a file descriptor")
	}
	if MediaFromMessage(RawMessage{ID: 1, File: &File{PhotoID: 5}}) != nil {
		t.Fatal("expected no media without a media payload")
	}

	photo := MediaFromMessage(RawMessage{ID: 1, HasMedia: true, File: &File{PhotoID: 5, DocumentID: 6, MimeType: "image/jpeg", Size: 10}})
	if photo == nil || photo.MediaID != 5 || photo.MimeType != "image/jpeg" || photo.FileSize != 10 {
		t.Fatalf("unexpected photo media: %+v", photo)
	}
	doc := MediaFromMessage(RawMessage{ID: 1, HasMedia: true, File: &File{DocumentID: 6, FileName: "a.pdf"}})
	if doc == nil || doc.MediaID != 6 || doc.FileName != "a.pdf" {
		t.Fatalf("unexpected document media: %+v", doc)
	}
	bare := MediaFromMessage(RawMessage{ID: 77, HasMedia: true, File: &File{}})
	if bare == nil || bare.MediaID != 77 {
		t.Fatalf("expected media id to fall back to message id: %+v", bare)
	}
}

func TestMessageFromRaw(t *testing.T) {
	date := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	msg := MessageFromRaw(RawMessage{ID: 9, Date: date, Text: "hi", Out: true}, nil)
	if msg.MessageID != 9 || !msg.Outgoing || msg.SenderID != nil || msg.Media != nil {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Message == nil || *msg.Message != "hi" {
		t.Fatalf("expected text, got %v", msg.Message)
	}
	if msg.Date == nil || !msg.Date.Equal(date) || msg.Date.Location() != time.UTC {
		t.Fatalf("expected UTC date, got %v", msg.Date)
	}

	empty := MessageFromRaw(RawMessage{ID: 10}, nil)
	if empty.Message != nil || empty.Date != nil {
		t.Fatalf("expected absent text and date: %+v", empty)
	}
}
