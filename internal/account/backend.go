package account

import (
	"context"
	"time"

	"mcptelegram/internal/peerref"
)

// Backend is the set of Telegram operations the tools are built from.
// The gotd gateway implements it; tests use a fake.
type Backend interface {
	Resolve(ctx context.Context, ref peerref.Ref) (Peer, error)
	PeerDialog(ctx context.Context, peer Peer) (DialogState, error)
	SearchPeers(ctx context.Context, query string, limit int) ([]Peer, error)
	Contacts(ctx context.Context) (ContactBook, error)
	Send(ctx context.Context, peer Peer, msg OutgoingMessage) error
	SaveDraft(ctx context.Context, peer Peer, text string) error
	// History calls fn for messages older than q.Before, newest first, until
	// fn returns false or the history is exhausted.
	History(ctx context.Context, peer Peer, q HistoryQuery, fn func(RawMessage) bool) error
	Message(ctx context.Context, peer Peer, id int) (RawMessage, error)
	MarkRead(ctx context.Context, peer Peer, maxID int) error
	Download(ctx context.Context, file File, dst string) error
}

// Peer is a resolved account, basic group or broadcast peer. Kind selects
// which of the remaining fields are meaningful.
type Peer struct {
	Kind peerref.Kind
	ID   int64

	// Individual
	FirstName string
	LastName  string
	Phone     string
	Bot       bool

	// BasicGroup, Broadcast
	Title     string
	Megagroup bool

	// Individual, Broadcast
	Username string

	// Address is the backend locator for the peer, passed back verbatim.
	Address any
}

func (p Peer) DisplayName() string {
	if p.Kind != peerref.Individual {
		return p.Title
	}
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	default:
		return p.LastName
	}
}

type DialogState struct {
	UnreadCount int
	Draft       string
}

// ContactBook is the raw saved-contacts answer: contact ids plus the user
// objects that came with it.
type ContactBook struct {
	UserIDs []int64
	Users   []Peer
}

type OutgoingMessage struct {
	Text    string
	Files   []string
	ReplyTo int
}

type HistoryQuery struct {
	Before    time.Time
	BatchSize int
}

// SenderKey identifies a message author by kind and raw per-kind id.
type SenderKey struct {
	Kind peerref.Kind
	ID   int64
}

type RawMessage struct {
	ID   int
	Date time.Time
	Text string
	Out  bool
	From *SenderKey

	// HasMedia is set for any media payload, File only for downloadable ones.
	HasMedia bool
	File     *File
}

type File struct {
	PhotoID    int64
	DocumentID int64
	FileName   string
	MimeType   string
	Size       int64

	// Location is the backend download locator.
	Location any
}
