package domain

import "time"

type DialogType string

const (
	DialogUser    DialogType = "user"
	DialogGroup   DialogType = "group"
	DialogChannel DialogType = "channel"
	DialogBot     DialogType = "bot"
)

// Dialog is a reachable conversation partner. UnreadMessagesCount is 0 when
// the dialog was built from a bare peer lookup rather than the dialog list.
type Dialog struct {
	ID                  int64      `json:"id"`
	Title               string     `json:"title"`
	Username            string     `json:"username,omitempty"`
	PhoneNumber         string     `json:"phone_number,omitempty"`
	Type                DialogType `json:"type"`
	UnreadMessagesCount int        `json:"unread_messages_count"`
}

type Contact struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type Media struct {
	MediaID  int64  `json:"media_id"`
	MimeType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

type Message struct {
	MessageID int        `json:"message_id"`
	SenderID  *int64     `json:"sender_id,omitempty"`
	Message   *string    `json:"message,omitempty"`
	Outgoing  bool       `json:"outgoing"`
	Date      *time.Time `json:"date,omitempty"`
	Media     *Media     `json:"media,omitempty"`
}

// Messages holds a batch ordered newest first.
type Messages struct {
	Messages []Message `json:"messages"`
	Dialog   *Dialog   `json:"dialog,omitempty"`
}

type DownloadedMedia struct {
	Path  string `json:"path"`
	Media Media  `json:"media"`
}

type MessagesQuery struct {
	Entity     string
	Limit      int
	StartDate  time.Time
	EndDate    time.Time
	UnreadOnly bool
	MarkAsRead bool
}
