package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"mcptelegram/internal/domain"
	"mcptelegram/internal/peerref"
)

const defaultSearchLimit = 10

var (
	ErrEmptyMessage = errors.New("message text or at least one file is required")
	ErrInvalidLimit = errors.New("limit must be greater than 0")

	// ErrMessageNotFound is returned by backends for missing or deleted messages.
	ErrMessageNotFound = errors.New("message not found")
)

// Service runs one operation at a time: the backend connection is shared and
// account-affecting calls must not overlap.
type Service struct {
	mu           sync.Mutex
	backend      Backend
	downloadsDir string
	log          *slog.Logger
}

func NewService(backend Backend, downloadsDir string, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{backend: backend, downloadsDir: downloadsDir, log: log}
}

func (s *Service) DownloadsDir() string {
	return s.downloadsDir
}

func (s *Service) resolve(ctx context.Context, entity string) (Peer, error) {
	peer, err := s.backend.Resolve(ctx, peerref.Parse(entity))
	if err != nil {
		return Peer{}, fmt.Errorf("resolve %q: %w", entity, err)
	}
	return peer, nil
}

func (s *Service) SendMessage(ctx context.Context, entity, text string, files []string, replyTo int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if text == "" && len(files) == 0 {
		return ErrEmptyMessage
	}
	peer, err := s.resolve(ctx, entity)
	if err != nil {
		return err
	}
	if err := s.backend.Send(ctx, peer, OutgoingMessage{
		Text:    text,
		Files:   files,
		ReplyTo: replyTo,
	}); err != nil {
		return fmt.Errorf("send to %q: %w", entity, err)
	}
	s.log.Debug("message sent", "entity", entity, "files", len(files))
	return nil
}

// SearchDialogs keeps the global search ranking. Dialogs built here carry no
// unread information.
func (s *Service) SearchDialogs(ctx context.Context, query string, limit int) ([]domain.Dialog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit < 0 {
		return nil, ErrInvalidLimit
	}
	peers, err := s.backend.SearchPeers(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search dialogs: %w", err)
	}

	seen := make(map[int64]struct{}, len(peers))
	out := make([]domain.Dialog, 0, min(len(peers), limit))
	for _, peer := range peers {
		if _, dup := seen[peer.ID]; dup {
			continue
		}
		seen[peer.ID] = struct{}{}
		dialog := DialogFromPeer(peer, 0)
		if !dialogMatches(query, dialog) {
			continue
		}
		out = append(out, dialog)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Service) GetDraft(ctx context.Context, entity string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, err := s.resolve(ctx, entity)
	if err != nil {
		return "", err
	}
	state, err := s.backend.PeerDialog(ctx, peer)
	if err != nil {
		return "", fmt.Errorf("get draft for %q: %w", entity, err)
	}
	return state.Draft, nil
}

func (s *Service) SetDraft(ctx context.Context, entity, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, err := s.resolve(ctx, entity)
	if err != nil {
		return err
	}
	if err := s.backend.SaveDraft(ctx, peer, text); err != nil {
		return fmt.Errorf("save draft for %q: %w", entity, err)
	}
	return nil
}

// GetMessages reads a newest-first window ending at q.EndDate and stopping at
// the first message older than q.StartDate.
func (s *Service) GetMessages(ctx context.Context, q domain.MessagesQuery) (domain.Messages, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := domain.Messages{Messages: []domain.Message{}}
	if q.Limit < 0 {
		return result, ErrInvalidLimit
	}

	peer, err := s.resolve(ctx, q.Entity)
	if err != nil {
		return result, err
	}

	if state, stateErr := s.backend.PeerDialog(ctx, peer); stateErr != nil {
		s.log.Warn("resolve dialog", "entity", q.Entity, "error", stateErr)
	} else {
		dialog := DialogFromPeer(peer, state.UnreadCount)
		result.Dialog = &dialog
	}

	limit := q.Limit
	if q.UnreadOnly {
		if result.Dialog == nil || result.Dialog.UnreadMessagesCount == 0 {
			return result, nil
		}
		limit = min(limit, result.Dialog.UnreadMessagesCount)
	}
	if limit <= 0 {
		return result, nil
	}

	var raws []RawMessage
	err = s.backend.History(ctx, peer, HistoryQuery{
		Before:    q.EndDate,
		BatchSize: limit,
	}, func(m RawMessage) bool {
		if !q.StartDate.IsZero() && m.Date.Before(q.StartDate) {
			return false
		}
		raws = append(raws, m)
		return len(raws) < limit
	})
	if err != nil {
		return result, fmt.Errorf("read history of %q: %w", q.Entity, err)
	}

	for _, raw := range raws {
		result.Messages = append(result.Messages, MessageFromRaw(raw, s.senderID(raw)))
		if q.MarkAsRead {
			if err := s.backend.MarkRead(ctx, peer, raw.ID); err != nil {
				s.log.Warn("mark message read", "entity", q.Entity, "message_id", raw.ID, "error", err)
			}
		}
	}
	return result, nil
}

func (s *Service) senderID(m RawMessage) *int64 {
	// Channel-authored posts have no sender.
	if m.From == nil || m.From.Kind == peerref.Broadcast {
		return nil
	}
	id, err := peerref.CanonicalID(m.From.Kind, m.From.ID)
	if err != nil {
		s.log.Warn("resolve sender", "message_id", m.ID, "error", err)
		return nil
	}
	return &id
}

// DownloadMedia returns nil without error when the message has nothing to
// download.
func (s *Service) DownloadMedia(ctx context.Context, entity string, messageID int) (*domain.DownloadedMedia, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer, err := s.resolve(ctx, entity)
	if err != nil {
		return nil, err
	}
	raw, err := s.backend.Message(ctx, peer, messageID)
	if errors.Is(err, ErrMessageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", messageID, err)
	}
	media := MediaFromMessage(raw)
	if media == nil {
		return nil, nil
	}

	if err := ensureDir(s.downloadsDir); err != nil {
		return nil, fmt.Errorf("create downloads dir: %w", err)
	}
	dst, err := filepath.Abs(filepath.Join(s.downloadsDir, UniqueFilename(raw)))
	if err != nil {
		return nil, err
	}
	if err := s.backend.Download(ctx, *raw.File, dst); err != nil {
		return nil, fmt.Errorf("download media of message %d: %w", messageID, err)
	}
	s.log.Info("media downloaded", "entity", entity, "message_id", messageID, "path", dst)
	return &domain.DownloadedMedia{Path: dst, Media: *media}, nil
}

// MessageFromLink returns nil without error for links it does not recognize.
func (s *Service) MessageFromLink(ctx context.Context, link string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, msgID, ok := peerref.ParseLink(link)
	if !ok {
		return nil, nil
	}
	peer, err := s.backend.Resolve(ctx, peerref.ID(peerref.LinkChatID(ref)))
	if err != nil {
		return nil, fmt.Errorf("resolve channel %s: %w", ref, err)
	}
	raw, err := s.backend.Message(ctx, peer, msgID)
	if errors.Is(err, ErrMessageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", msgID, err)
	}
	msg := MessageFromRaw(raw, s.senderID(raw))
	return &msg, nil
}

func (s *Service) SearchContacts(ctx context.Context, query string) ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	book, err := s.backend.Contacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	contacts := ContactsFromBook(book)
	if query == "" {
		return contacts, nil
	}
	out := make([]domain.Contact, 0, len(contacts))
	for _, c := range contacts {
		if contactMatches(query, c) {
			out = append(out, c)
		}
	}
	return out, nil
}
