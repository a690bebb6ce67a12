package telegram

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"mcptelegram/internal/account"
	"mcptelegram/internal/peerref"

	"github.com/gotd/td/bin"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
)

var errHalt = errors.New("halt")

// recordingInvoker accepts file part uploads and records every other request,
// failing it so the send stops at the first outgoing message call.
type recordingInvoker struct {
	mu       sync.Mutex
	requests []bin.Encoder
}

func (r *recordingInvoker) Invoke(_ context.Context, input bin.Encoder, output bin.Decoder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := input.(*tg.UploadSaveFilePartRequest); ok {
		var buf bin.Buffer
		if err := (&tg.BoolTrue{}).Encode(&buf); err != nil {
			return err
		}
		return output.Decode(&buf)
	}
	r.requests = append(r.requests, input)
	return errHalt
}

func (r *recordingInvoker) first(t *testing.T) bin.Encoder {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		t.Fatalf("no request was sent")
	}
	return r.requests[0]
}

func newSendGateway(inv tg.Invoker) *Gateway {
	api := tg.NewClient(inv)
	up := uploader.NewUploader(api)
	return &Gateway{
		api:      api,
		uploader: up,
		sender:   message.NewSender(api).WithUploader(up),
	}
}

func sendPeer() account.Peer {
	return account.Peer{
		Kind:    peerref.Individual,
		ID:      42,
		Address: &tg.InputPeerUser{UserID: 42, AccessHash: 7},
	}
}

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, name := range names {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("content of "+name), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestSendTextCarriesEntities(t *testing.T) {
	inv := &recordingInvoker{}
	g := newSendGateway(inv)

	err := g.Send(context.Background(), sendPeer(), account.OutgoingMessage{Text: "**hi** there"})
	if err == nil {
		t.Fatalf("expected the halted call to fail the send")
	}
	req, ok := inv.first(t).(*tg.MessagesSendMessageRequest)
	if !ok {
		t.Fatalf("expected messages.sendMessage, got %T", inv.first(t))
	}
	if req.Message != "hi there" {
		t.Fatalf("unexpected text %q", req.Message)
	}
	if len(req.Entities) != 1 {
		t.Fatalf("expected one entity, got %d", len(req.Entities))
	}
	bold, ok := req.Entities[0].(*tg.MessageEntityBold)
	if !ok || bold.Offset != 0 || bold.Length != 2 {
		t.Fatalf("unexpected entity %#v", req.Entities[0])
	}
}

func TestSendOneFileAsDocumentWithCaption(t *testing.T) {
	inv := &recordingInvoker{}
	g := newSendGateway(inv)
	files := writeFiles(t, "report.txt")

	err := g.Send(context.Background(), sendPeer(), account.OutgoingMessage{Text: "__see__", Files: files})
	if err == nil {
		t.Fatalf("expected the halted call to fail the send")
	}
	req, ok := inv.first(t).(*tg.MessagesSendMediaRequest)
	if !ok {
		t.Fatalf("expected messages.sendMedia, got %T", inv.first(t))
	}
	if req.Message != "see" {
		t.Fatalf("unexpected caption %q", req.Message)
	}
	if len(req.Entities) != 1 {
		t.Fatalf("expected one caption entity, got %d", len(req.Entities))
	}
	if _, ok := req.Entities[0].(*tg.MessageEntityItalic); !ok {
		t.Fatalf("unexpected entity %#v", req.Entities[0])
	}
	if _, ok := req.Media.(*tg.InputMediaUploadedDocument); !ok {
		t.Fatalf("expected uploaded document, got %T", req.Media)
	}
}

func TestSendSeveralFilesAsAlbum(t *testing.T) {
	inv := &recordingInvoker{}
	g := newSendGateway(inv)
	files := writeFiles(t, "a.txt", "b.txt")

	err := g.Send(context.Background(), sendPeer(), account.OutgoingMessage{Text: "both", Files: files})
	if err == nil {
		t.Fatalf("expected the halted call to fail the send")
	}
	switch req := inv.first(t).(type) {
	case *tg.MessagesUploadMediaRequest, *tg.MessagesSendMultiMediaRequest:
	default:
		t.Fatalf("expected an album request, got %T", req)
	}
}
