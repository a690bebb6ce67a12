package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"sync/atomic"

	"mcptelegram/internal/account"
	"mcptelegram/internal/peerref"

	"github.com/gotd/contrib/middleware/floodwait"
	tdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/styling"
	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/telegram/query/dialogs"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
)

const (
	dialogBatchSize  = 100
	historyBatchSize = 100
	floodMaxRetries  = 5
)

var (
	ErrNotConfigured = errors.New("telegram api credentials are not configured")
	ErrUnauthorized  = errors.New("telegram session is not authorized, run the login command first")
	ErrPeerNotFound  = errors.New("peer not found")

	errStopIteration = errors.New("stop iteration")
)

type Options struct {
	APIID       int
	APIHash     string
	SessionPath string
	Logger      *slog.Logger
}

// Gateway owns the single MTProto connection of the process and implements
// account.Backend on top of it.
type Gateway struct {
	client     *tdtelegram.Client
	api        *tg.Client
	dispatcher tg.UpdateDispatcher
	sender     *message.Sender
	uploader   *uploader.Uploader
	downloader *downloader.Downloader
	session    *FileSessionStorage
	log        *slog.Logger
	selfID     atomic.Int64
}

var _ account.Backend = (*Gateway)(nil)

func NewGateway(opts Options) (*Gateway, error) {
	apiHash := strings.TrimSpace(opts.APIHash)
	if opts.APIID <= 0 || apiHash == "" {
		return nil, ErrNotConfigured
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	g := &Gateway{
		dispatcher: tg.NewUpdateDispatcher(),
		session:    &FileSessionStorage{Path: opts.SessionPath},
		downloader: downloader.NewDownloader(),
		log:        log,
	}
	g.client = tdtelegram.NewClient(opts.APIID, apiHash, tdtelegram.Options{
		SessionStorage: g.session,
		UpdateHandler:  g.dispatcher,
		Middlewares: []tdtelegram.Middleware{
			floodwait.NewSimpleWaiter().WithMaxRetries(floodMaxRetries),
		},
	})
	g.api = g.client.API()
	g.uploader = uploader.NewUploader(g.api)
	g.sender = message.NewSender(g.api).WithUploader(g.uploader)
	return g, nil
}

// Run connects, requires an authorized session and calls fn. The connection
// is closed when Run returns, whatever fn returned.
func (g *Gateway) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.session.Exists() {
		return ErrUnauthorized
	}
	return g.client.Run(ctx, func(runCtx context.Context) error {
		status, err := g.client.Auth().Status(runCtx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return ErrUnauthorized
		}
		if status.User != nil {
			g.selfID.Store(status.User.ID)
			g.log.Info("telegram connected", "user", formatUserDisplay(status.User))
		}
		defer g.log.Info("telegram disconnected")
		return fn(runCtx)
	})
}

func (g *Gateway) Resolve(ctx context.Context, ref peerref.Ref) (account.Peer, error) {
	switch {
	case ref.IsID():
		return g.resolveByID(ctx, ref.ID)
	case ref.IsSelf():
		self, err := g.client.Self(ctx)
		if err != nil {
			return account.Peer{}, err
		}
		g.selfID.Store(self.ID)
		peer := peerFromUser(self)
		peer.Address = &tg.InputPeerSelf{}
		return peer, nil
	case ref.IsPhone():
		resolved, err := g.api.ContactsResolvePhone(ctx, peerref.Phone(ref.Handle))
		if err != nil {
			return account.Peer{}, fmt.Errorf("resolve phone: %w", err)
		}
		return peerFromResolved(resolved)
	default:
		username := ref.Username()
		if username == "" {
			return account.Peer{}, fmt.Errorf("%w: empty entity", ErrPeerNotFound)
		}
		resolved, err := g.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: username,
		})
		if err != nil {
			return account.Peer{}, fmt.Errorf("resolve username: %w", err)
		}
		return peerFromResolved(resolved)
	}
}

func peerFromResolved(resolved *tg.ContactsResolvedPeer) (account.Peer, error) {
	lookup := buildEntityLookup(resolved.Users, resolved.Chats)
	peer, ok := lookup.peer(resolved.Peer)
	if !ok {
		return account.Peer{}, ErrPeerNotFound
	}
	return peer, nil
}

// resolveByID walks the dialog list; numeric ids carry no access hash.
func (g *Gateway) resolveByID(ctx context.Context, chatID int64) (account.Peer, error) {
	if chatID == g.selfID.Load() && chatID > 0 {
		return g.Resolve(ctx, peerref.Parse("me"))
	}
	var found *account.Peer
	err := query.GetDialogs(g.api).BatchSize(dialogBatchSize).ForEach(ctx, func(_ context.Context, elem dialogs.Elem) error {
		if elem.Dialog == nil {
			return nil
		}
		if id, ok := peerToChatID(elem.Dialog.GetPeer()); !ok || id != chatID {
			return nil
		}
		peer, ok := peerFromElem(elem)
		if !ok {
			return nil
		}
		found = &peer
		return errStopIteration
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return account.Peer{}, fmt.Errorf("list dialogs: %w", err)
	}
	if found == nil {
		return account.Peer{}, fmt.Errorf("%w: %d", ErrPeerNotFound, chatID)
	}
	return *found, nil
}

func peerFromElem(elem dialogs.Elem) (account.Peer, bool) {
	if elem.Dialog == nil {
		return account.Peer{}, false
	}
	var peer account.Peer
	switch p := elem.Dialog.GetPeer().(type) {
	case *tg.PeerUser:
		user, ok := elem.Entities.User(p.UserID)
		if !ok || user == nil {
			return account.Peer{}, false
		}
		peer = peerFromUser(user)
	case *tg.PeerChat:
		chat, ok := elem.Entities.Chat(p.ChatID)
		if !ok || chat == nil {
			return account.Peer{}, false
		}
		peer = peerFromChat(chat)
	case *tg.PeerChannel:
		channel, ok := elem.Entities.Channel(p.ChannelID)
		if !ok || channel == nil {
			return account.Peer{}, false
		}
		peer = peerFromChannel(channel)
	default:
		return account.Peer{}, false
	}
	if elem.Peer != nil {
		peer.Address = elem.Peer
	}
	return peer, true
}

func (g *Gateway) PeerDialog(ctx context.Context, peer account.Peer) (account.DialogState, error) {
	input, err := inputPeer(peer)
	if err != nil {
		return account.DialogState{}, err
	}
	res, err := g.api.MessagesGetPeerDialogs(ctx, []tg.InputDialogPeerClass{
		&tg.InputDialogPeer{Peer: input},
	})
	if err != nil {
		return account.DialogState{}, err
	}
	for _, dialogClass := range res.Dialogs {
		dialog, ok := dialogClass.(*tg.Dialog)
		if !ok {
			continue
		}
		state := account.DialogState{UnreadCount: dialog.UnreadCount}
		if draft, ok := dialog.Draft.(*tg.DraftMessage); ok && draft != nil {
			state.Draft = draft.Message
		}
		return state, nil
	}
	return account.DialogState{}, fmt.Errorf("%w: no dialog for %d", ErrPeerNotFound, peer.ID)
}

// SearchPeers keeps the server ranking: the account's own matches first,
// then global results.
func (g *Gateway) SearchPeers(ctx context.Context, q string, limit int) ([]account.Peer, error) {
	found, err := g.api.ContactsSearch(ctx, &tg.ContactsSearchRequest{Q: q, Limit: limit})
	if err != nil {
		return nil, err
	}
	lookup := buildEntityLookup(found.Users, found.Chats)
	ordered := append(append([]tg.PeerClass{}, found.MyResults...), found.Results...)
	out := make([]account.Peer, 0, len(ordered))
	for _, p := range ordered {
		peer, ok := lookup.peer(p)
		if !ok {
			continue
		}
		out = append(out, peer)
	}
	return out, nil
}

func (g *Gateway) Contacts(ctx context.Context) (account.ContactBook, error) {
	res, err := g.api.ContactsGetContacts(ctx, 0)
	if err != nil {
		return account.ContactBook{}, err
	}
	contacts, ok := res.(*tg.ContactsContacts)
	if !ok {
		return account.ContactBook{}, fmt.Errorf("unexpected contacts result type: %T", res)
	}
	book := account.ContactBook{
		UserIDs: make([]int64, 0, len(contacts.Contacts)),
		Users:   make([]account.Peer, 0, len(contacts.Users)),
	}
	for _, c := range contacts.Contacts {
		book.UserIDs = append(book.UserIDs, c.UserID)
	}
	for _, userClass := range contacts.Users {
		if user, ok := userClass.(*tg.User); ok && user != nil {
			book.Users = append(book.Users, peerFromUser(user))
		}
	}
	return book, nil
}

// Send posts Markdown text alone, one file as a document, or several files
// as an album. The text becomes the caption of the first file.
func (g *Gateway) Send(ctx context.Context, peer account.Peer, msg account.OutgoingMessage) error {
	input, err := inputPeer(peer)
	if err != nil {
		return err
	}
	builder := &g.sender.To(input).Builder
	if msg.ReplyTo > 0 {
		builder = builder.Reply(msg.ReplyTo)
	}
	if len(msg.Files) == 0 {
		_, err := builder.StyledText(ctx, styledMarkdown(msg.Text)...)
		return err
	}

	docs := make([]message.MultiMediaOption, 0, len(msg.Files))
	for i, path := range msg.Files {
		file, err := g.uploader.FromPath(ctx, path)
		if err != nil {
			return fmt.Errorf("upload %s: %w", path, err)
		}
		var caption []styling.StyledTextOption
		if i == 0 {
			caption = styledMarkdown(msg.Text)
		}
		docs = append(docs, message.UploadedDocument(file, caption...).
			MIME(mimeByPath(path)).
			Filename(filepath.Base(path)))
	}
	if len(docs) == 1 {
		_, err = builder.Media(ctx, docs[0])
	} else {
		_, err = builder.Album(ctx, docs[0], docs[1:]...)
	}
	if err != nil {
		return fmt.Errorf("send %d file(s): %w", len(docs), err)
	}
	return nil
}

func mimeByPath(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (g *Gateway) SaveDraft(ctx context.Context, peer account.Peer, text string) error {
	input, err := inputPeer(peer)
	if err != nil {
		return err
	}
	_, err = g.api.MessagesSaveDraft(ctx, &tg.MessagesSaveDraftRequest{
		Peer:    input,
		Message: text,
	})
	return err
}

func (g *Gateway) History(ctx context.Context, peer account.Peer, q account.HistoryQuery, fn func(account.RawMessage) bool) error {
	input, err := inputPeer(peer)
	if err != nil {
		return err
	}
	batch := q.BatchSize
	if batch <= 0 || batch > historyBatchSize {
		batch = historyBatchSize
	}
	builder := query.Messages(g.api).GetHistory(input).BatchSize(batch)
	if !q.Before.IsZero() {
		builder = builder.OffsetDate(int(q.Before.Unix()))
	}

	selfID := g.selfID.Load()
	iter := builder.Iter()
	for iter.Next(ctx) {
		raw, ok := rawFromMessage(iter.Value().Msg, selfID)
		if !ok {
			continue
		}
		if !fn(raw) {
			return nil
		}
	}
	return iter.Err()
}

func (g *Gateway) Message(ctx context.Context, peer account.Peer, id int) (account.RawMessage, error) {
	input, err := inputPeer(peer)
	if err != nil {
		return account.RawMessage{}, err
	}
	msg, err := fetchSingleMessage(ctx, g.api, input, id)
	if err != nil {
		return account.RawMessage{}, err
	}
	raw, ok := rawFromMessage(msg, g.selfID.Load())
	if !ok {
		return account.RawMessage{}, account.ErrMessageNotFound
	}
	return raw, nil
}

func (g *Gateway) MarkRead(ctx context.Context, peer account.Peer, maxID int) error {
	input, err := inputPeer(peer)
	if err != nil {
		return err
	}
	return markPeerRead(ctx, g.api, input, maxID)
}

func (g *Gateway) Download(ctx context.Context, file account.File, dst string) error {
	loc, ok := file.Location.(tg.InputFileLocationClass)
	if !ok || loc == nil {
		return errors.New("media has no downloadable location")
	}
	_, err := g.downloader.Download(g.api, loc).ToPath(ctx, dst)
	return err
}

func inputPeer(peer account.Peer) (tg.InputPeerClass, error) {
	input, ok := peer.Address.(tg.InputPeerClass)
	if !ok || input == nil {
		return nil, fmt.Errorf("%w: peer %d has no address", ErrPeerNotFound, peer.ID)
	}
	return input, nil
}

func fetchSingleMessage(ctx context.Context, api *tg.Client, peer tg.InputPeerClass, msgID int) (tg.NotEmptyMessage, error) {
	if msgID <= 0 {
		return nil, account.ErrMessageNotFound
	}
	input := []tg.InputMessageClass{&tg.InputMessageID{ID: msgID}}

	var (
		resp tg.MessagesMessagesClass
		err  error
	)
	switch p := peer.(type) {
	case *tg.InputPeerChannel:
		resp, err = api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{
				ChannelID:  p.ChannelID,
				AccessHash: p.AccessHash,
			},
			ID: input,
		})
	default:
		resp, err = api.MessagesGetMessages(ctx, input)
	}
	if err != nil {
		return nil, err
	}
	modified, ok := resp.AsModified()
	if !ok {
		return nil, errors.New("unexpected response type")
	}
	for _, msgClass := range modified.GetMessages() {
		msg, ok := msgClass.AsNotEmpty()
		if ok && msg.GetID() == msgID {
			return msg, nil
		}
	}
	return nil, account.ErrMessageNotFound
}

func markPeerRead(ctx context.Context, api *tg.Client, peer tg.InputPeerClass, maxMsgID int) error {
	if maxMsgID <= 0 {
		return nil
	}
	switch p := peer.(type) {
	case *tg.InputPeerChannel:
		_, err := api.ChannelsReadHistory(ctx, &tg.ChannelsReadHistoryRequest{
			Channel: &tg.InputChannel{
				ChannelID:  p.ChannelID,
				AccessHash: p.AccessHash,
			},
			MaxID: maxMsgID,
		})
		return err
	default:
		_, err := api.MessagesReadHistory(ctx, &tg.MessagesReadHistoryRequest{
			Peer:  peer,
			MaxID: maxMsgID,
		})
		return err
	}
}

func formatUserDisplay(user *tg.User) string {
	if user == nil {
		return ""
	}
	name := strings.TrimSpace(strings.Join([]string{user.FirstName, user.LastName}, " "))
	if name != "" {
		return name
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return fmt.Sprintf("User %d", user.ID)
}
