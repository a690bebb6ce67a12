package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mcptelegram/internal/account"
	"mcptelegram/internal/peerref"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// slowBackend records how many account calls overlap.
type slowBackend struct {
	active atomic.Int32
	peak   atomic.Int32
	sends  atomic.Int32
}

func (b *slowBackend) enter() func() {
	n := b.active.Add(1)
	for {
		peak := b.peak.Load()
		if n <= peak || b.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(50 * time.Millisecond)
	return func() { b.active.Add(-1) }
}

func (b *slowBackend) Resolve(context.Context, peerref.Ref) (account.Peer, error) {
	return account.Peer{Kind: peerref.Individual, ID: 1, FirstName: "Me"}, nil
}

func (b *slowBackend) PeerDialog(context.Context, account.Peer) (account.DialogState, error) {
	return account.DialogState{UnreadCount: 1}, nil
}

func (b *slowBackend) SearchPeers(context.Context, string, int) ([]account.Peer, error) {
	return nil, nil
}

func (b *slowBackend) Contacts(context.Context) (account.ContactBook, error) {
	return account.ContactBook{}, nil
}

func (b *slowBackend) Send(context.Context, account.Peer, account.OutgoingMessage) error {
	defer b.enter()()
	b.sends.Add(1)
	return nil
}

func (b *slowBackend) SaveDraft(context.Context, account.Peer, string) error {
	defer b.enter()()
	return nil
}

func (b *slowBackend) History(_ context.Context, _ account.Peer, _ account.HistoryQuery, fn func(account.RawMessage) bool) error {
	fn(account.RawMessage{ID: 9, Date: time.Now().Add(-time.Minute), Text: "hi"})
	return nil
}

func (b *slowBackend) Message(context.Context, account.Peer, int) (account.RawMessage, error) {
	return account.RawMessage{}, account.ErrMessageNotFound
}

func (b *slowBackend) MarkRead(context.Context, account.Peer, int) error {
	defer b.enter()()
	return nil
}

func (b *slowBackend) Download(context.Context, account.File, string) error {
	return nil
}

func TestConcurrentToolCallsRunSerially(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend := &slowBackend{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := New(account.NewService(backend, t.TempDir(), log), Options{Logger: log})

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.mcp.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("connect server: %v", err)
	}
	defer serverSession.Close()
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "test"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	defer session.Close()

	calls := []*mcp.CallToolParams{
		{Name: "send_message", Arguments: map[string]any{"entity": "me", "message": "one"}},
		{Name: "send_message", Arguments: map[string]any{"entity": "me", "message": "two"}},
		{Name: "send_message", Arguments: map[string]any{"entity": "me", "message": "three"}},
		{Name: "set_draft", Arguments: map[string]any{"entity": "me", "message": "draft"}},
		{Name: "get_messages", Arguments: map[string]any{"entity": "me", "mark_as_read": true}},
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(calls))
	for _, params := range calls {
		wg.Add(1)
		go func(params *mcp.CallToolParams) {
			defer wg.Done()
			res, err := session.CallTool(ctx, params)
			if err != nil {
				errs <- err
				return
			}
			if res.IsError {
				errs <- &toolError{name: params.Name, res: res}
			}
		}(params)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("tool call failed: %v", err)
	}

	if got := backend.sends.Load(); got != 3 {
		t.Fatalf("expected 3 sends, got %d", got)
	}
	if peak := backend.peak.Load(); peak != 1 {
		t.Fatalf("account calls overlapped: peak concurrency %d", peak)
	}
}

type toolError struct {
	name string
	res  *mcp.CallToolResult
}

func (e *toolError) Error() string {
	if len(e.res.Content) > 0 {
		if text, ok := e.res.Content[0].(*mcp.TextContent); ok {
			return e.name + ": " + text.Text
		}
	}
	return e.name + ": error result"
}
