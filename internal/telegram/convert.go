package telegram

import (
	"time"

	"mcptelegram/internal/account"
	"mcptelegram/internal/peerref"

	"github.com/gotd/td/tg"
)

// This file is the only place where tg objects become account values.

type entityLookup struct {
	users    map[int64]*tg.User
	chats    map[int64]*tg.Chat
	channels map[int64]*tg.Channel
}

func buildEntityLookup(users []tg.UserClass, chats []tg.ChatClass) entityLookup {
	lookup := entityLookup{
		users:    make(map[int64]*tg.User, len(users)),
		chats:    map[int64]*tg.Chat{},
		channels: map[int64]*tg.Channel{},
	}
	for _, userClass := range users {
		user, ok := userClass.(*tg.User)
		if ok && user != nil {
			lookup.users[user.ID] = user
		}
	}
	for _, chatClass := range chats {
		switch entry := chatClass.(type) {
		case *tg.Chat:
			if entry != nil {
				lookup.chats[entry.ID] = entry
			}
		case *tg.Channel:
			if entry != nil {
				lookup.channels[entry.ID] = entry
			}
		}
	}
	return lookup
}

func (l entityLookup) peer(p tg.PeerClass) (account.Peer, bool) {
	switch from := p.(type) {
	case *tg.PeerUser:
		if user, ok := l.users[from.UserID]; ok {
			return peerFromUser(user), true
		}
	case *tg.PeerChat:
		if chat, ok := l.chats[from.ChatID]; ok {
			return peerFromChat(chat), true
		}
	case *tg.PeerChannel:
		if channel, ok := l.channels[from.ChannelID]; ok {
			return peerFromChannel(channel), true
		}
	}
	return account.Peer{}, false
}

func peerFromUser(user *tg.User) account.Peer {
	return account.Peer{
		Kind:      peerref.Individual,
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  primaryUsername(user.Username, user.Usernames),
		Phone:     user.Phone,
		Bot:       user.Bot,
		Address:   &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash},
	}
}

func peerFromChat(chat *tg.Chat) account.Peer {
	return account.Peer{
		Kind:    peerref.BasicGroup,
		ID:      -chat.ID,
		Title:   chat.Title,
		Address: &tg.InputPeerChat{ChatID: chat.ID},
	}
}

func peerFromChannel(channel *tg.Channel) account.Peer {
	return account.Peer{
		Kind:      peerref.Broadcast,
		ID:        -(peerref.ChannelIDOffset + channel.ID),
		Title:     channel.Title,
		Username:  primaryUsername(channel.Username, channel.Usernames),
		Megagroup: channel.Megagroup,
		Address:   &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash},
	}
}

// primaryUsername falls back to the first active collectible username.
func primaryUsername(username string, usernames []tg.Username) string {
	if username != "" {
		return username
	}
	for _, u := range usernames {
		if u.Active && u.Username != "" {
			return u.Username
		}
	}
	return ""
}

func peerToChatID(peer tg.PeerClass) (int64, bool) {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID, true
	case *tg.PeerChat:
		return -p.ChatID, true
	case *tg.PeerChannel:
		return -(peerref.ChannelIDOffset + p.ChannelID), true
	default:
		return 0, false
	}
}

func senderKeyFromPeer(peer tg.PeerClass) *account.SenderKey {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return &account.SenderKey{Kind: peerref.Individual, ID: p.UserID}
	case *tg.PeerChat:
		return &account.SenderKey{Kind: peerref.BasicGroup, ID: p.ChatID}
	case *tg.PeerChannel:
		return &account.SenderKey{Kind: peerref.Broadcast, ID: p.ChannelID}
	default:
		return nil
	}
}

// messageSender prefers the explicit author. Private chats omit it, so the
// chat peer (incoming) or the current account (outgoing) stands in.
func messageSender(fromID tg.PeerClass, hasFrom bool, peerID tg.PeerClass, out bool, selfID int64) *account.SenderKey {
	if hasFrom && fromID != nil {
		return senderKeyFromPeer(fromID)
	}
	user, private := peerID.(*tg.PeerUser)
	switch {
	case !private:
		return nil
	case out && selfID > 0:
		return &account.SenderKey{Kind: peerref.Individual, ID: selfID}
	case out:
		return nil
	default:
		return &account.SenderKey{Kind: peerref.Individual, ID: user.UserID}
	}
}

func rawFromMessage(msg tg.NotEmptyMessage, selfID int64) (account.RawMessage, bool) {
	switch m := msg.(type) {
	case *tg.Message:
		from, hasFrom := m.GetFromID()
		raw := account.RawMessage{
			ID:   m.ID,
			Date: time.Unix(int64(m.Date), 0).UTC(),
			Text: m.Message,
			Out:  m.Out,
			From: messageSender(from, hasFrom, m.PeerID, m.Out, selfID),
		}
		raw.HasMedia, raw.File = fileFromMedia(m.Media)
		return raw, true
	case *tg.MessageService:
		from, hasFrom := m.GetFromID()
		return account.RawMessage{
			ID:   m.ID,
			Date: time.Unix(int64(m.Date), 0).UTC(),
			Out:  m.Out,
			From: messageSender(from, hasFrom, m.PeerID, m.Out, selfID),
		}, true
	default:
		return account.RawMessage{}, false
	}
}

// fileFromMedia reports whether a media payload is present and, for photos
// and documents, how to download it.
func fileFromMedia(media tg.MessageMediaClass) (bool, *account.File) {
	switch m := media.(type) {
	case nil, *tg.MessageMediaEmpty:
		return false, nil
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok || photo == nil {
			return true, nil
		}
		thumb, size := largestPhotoSize(photo.Sizes)
		if thumb == "" {
			return true, nil
		}
		return true, &account.File{
			PhotoID:  photo.ID,
			MimeType: "image/jpeg",
			Size:     size,
			Location: &tg.InputPhotoFileLocation{
				ID:            photo.ID,
				AccessHash:    photo.AccessHash,
				FileReference: photo.FileReference,
				ThumbSize:     thumb,
			},
		}
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok || doc == nil {
			return true, nil
		}
		return true, &account.File{
			DocumentID: doc.ID,
			FileName:   documentFilename(doc.Attributes),
			MimeType:   doc.MimeType,
			Size:       doc.Size,
			Location: &tg.InputDocumentFileLocation{
				ID:            doc.ID,
				AccessHash:    doc.AccessHash,
				FileReference: doc.FileReference,
			},
		}
	default:
		return true, nil
	}
}

func largestPhotoSize(sizes []tg.PhotoSizeClass) (string, int64) {
	var (
		bestType string
		bestSize int64 = -1
	)
	for _, sizeClass := range sizes {
		var (
			kind string
			size int64
		)
		switch s := sizeClass.(type) {
		case *tg.PhotoSize:
			kind, size = s.Type, int64(s.Size)
		case *tg.PhotoSizeProgressive:
			kind = s.Type
			for _, v := range s.Sizes {
				size = max(size, int64(v))
			}
		case *tg.PhotoCachedSize:
			kind, size = s.Type, int64(len(s.Bytes))
		default:
			continue
		}
		if size > bestSize {
			bestType, bestSize = kind, size
		}
	}
	return bestType, max(bestSize, 0)
}

func documentFilename(attrs []tg.DocumentAttributeClass) string {
	for _, attr := range attrs {
		if named, ok := attr.(*tg.DocumentAttributeFilename); ok && named != nil {
			return named.FileName
		}
	}
	return ""
}
