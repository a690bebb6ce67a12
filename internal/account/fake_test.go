package account

import (
	"context"
	"errors"
	"os"

	"mcptelegram/internal/peerref"
)

type fakeBackend struct {
	peers        map[string]Peer
	dialogs      map[int64]DialogState
	dialogErr    error
	searchResult []Peer
	book         ContactBook
	history      []RawMessage
	messages     map[int]RawMessage
	markReadErr  map[int]error

	sent         []OutgoingMessage
	drafts       map[int64]string
	historyCalls int
	historyQuery HistoryQuery
	delivered    int
	markedRead   []int
	downloadedTo []string
	resolvedRefs []peerref.Ref
}

func (f *fakeBackend) Resolve(_ context.Context, ref peerref.Ref) (Peer, error) {
	f.resolvedRefs = append(f.resolvedRefs, ref)
	if peer, ok := f.peers[ref.String()]; ok {
		return peer, nil
	}
	return Peer{}, errors.New("peer not found")
}

func (f *fakeBackend) PeerDialog(_ context.Context, peer Peer) (DialogState, error) {
	if f.dialogErr != nil {
		return DialogState{}, f.dialogErr
	}
	state, ok := f.dialogs[peer.ID]
	if !ok {
		return DialogState{}, errors.New("dialog not found")
	}
	if draft, ok := f.drafts[peer.ID]; ok {
		state.Draft = draft
	}
	return state, nil
}

func (f *fakeBackend) SearchPeers(context.Context, string, int) ([]Peer, error) {
	return f.searchResult, nil
}

func (f *fakeBackend) Contacts(context.Context) (ContactBook, error) {
	return f.book, nil
}

func (f *fakeBackend) Send(_ context.Context, _ Peer, msg OutgoingMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeBackend) SaveDraft(_ context.Context, peer Peer, text string) error {
	if f.drafts == nil {
		f.drafts = map[int64]string{}
	}
	f.drafts[peer.ID] = text
	return nil
}

func (f *fakeBackend) History(_ context.Context, _ Peer, q HistoryQuery, fn func(RawMessage) bool) error {
	f.historyCalls++
	f.historyQuery = q
	for _, m := range f.history {
		if !q.Before.IsZero() && !m.Date.Before(q.Before) {
			continue
		}
		f.delivered++
		if !fn(m) {
			return nil
		}
	}
	return nil
}

func (f *fakeBackend) Message(_ context.Context, _ Peer, id int) (RawMessage, error) {
	m, ok := f.messages[id]
	if !ok {
		return RawMessage{}, ErrMessageNotFound
	}
	return m, nil
}

func (f *fakeBackend) MarkRead(_ context.Context, _ Peer, maxID int) error {
	if err := f.markReadErr[maxID]; err != nil {
		return err
	}
	f.markedRead = append(f.markedRead, maxID)
	return nil
}

func (f *fakeBackend) Download(_ context.Context, _ File, dst string) error {
	f.downloadedTo = append(f.downloadedTo, dst)
	return os.WriteFile(dst, []byte("payload"), 0o644)
}
