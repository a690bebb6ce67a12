package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mcptelegram/internal/domain"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	ServerName = "mcp-telegram"

	defaultLimit      = 10
	defaultWindowDays = 10
)

type TelegramService interface {
	SendMessage(ctx context.Context, entity, text string, files []string, replyTo int) error
	SearchDialogs(ctx context.Context, query string, limit int) ([]domain.Dialog, error)
	GetDraft(ctx context.Context, entity string) (string, error)
	SetDraft(ctx context.Context, entity, text string) error
	GetMessages(ctx context.Context, q domain.MessagesQuery) (domain.Messages, error)
	DownloadMedia(ctx context.Context, entity string, messageID int) (*domain.DownloadedMedia, error)
	MessageFromLink(ctx context.Context, link string) (*domain.Message, error)
	SearchContacts(ctx context.Context, query string) ([]domain.Contact, error)
}

type Options struct {
	Version string
	Logger  *slog.Logger
	// Now is the clock used for default date windows.
	Now func() time.Time
}

type Server struct {
	mu       sync.RWMutex
	telegram TelegramService
	mcp      *mcp.Server
	log      *slog.Logger
	now      func() time.Time
	httpSrv  *http.Server
	endpoint string
}

func New(telegram TelegramService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		telegram: telegram,
		log:      opts.Logger,
		now:      opts.Now,
	}
	s.mcp = s.newMCPServer(opts.Version)
	return s
}

func (s *Server) newMCPServer(version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "send_message",
		Description: "Send a message to a Telegram user, group, or channel. The entity can be a chat ID, " +
			"a username, a phone number in international format, or \"me\" for Saved Messages. " +
			"If you are not sure about the entity, use search_dialogs and ask the user to pick one.",
	}, s.sendMessageTool)
	mcp.AddTool(server, &mcp.Tool{
		Name: "search_dialogs",
		Description: "Search users, groups, and channels. Matching is case-insensitive over title, " +
			"username and phone. If results look wrong, retry with a more specific query.",
	}, s.searchDialogsTool)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_draft",
		Description: "Get the draft message for an entity. Returns an empty string when there is no draft.",
	}, s.getDraftTool)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_draft",
		Description: "Save a draft message for an entity.",
	}, s.setDraftTool)
	mcp.AddTool(server, &mcp.Tool{
		Name: "get_messages",
		Description: "Get messages from an entity, newest first, within a date window " +
			"(defaults to the last 10 days), optionally only unread ones and optionally marking them read.",
	}, s.getMessagesTool)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "media_download",
		Description: "Download the media of a message to a uniquely named local file and return its absolute path.",
	}, s.mediaDownloadTool)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "message_from_link",
		Description: "Get a message from a private channel link such as https://t.me/c/1234567890/55.",
	}, s.messageFromLinkTool)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_contacts",
		Description: "Search saved contacts by name, username or phone. An empty query lists every contact.",
	}, s.searchContactsTool)

	return server
}

// RunStdio serves a single client over stdin/stdout until ctx is done or
// the client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.log.Info("mcp server listening", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endpoint
}

// Start serves streamable HTTP on addr. Only loopback addresses are accepted.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv != nil {
		return nil
	}
	if err := requireLoopback(addr); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	streamHandler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", withOriginValidation(streamHandler))
	httpSrv := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("mcp http server stopped", "error", err)
		}
	}()

	s.httpSrv = httpSrv
	s.endpoint = "http://" + listener.Addr().String() + "/mcp"
	s.log.Info("mcp server listening", "transport", "http", "endpoint", s.endpoint)
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpSrv == nil {
		return nil
	}
	err := s.httpSrv.Shutdown(ctx)
	s.httpSrv = nil
	s.endpoint = ""
	return err
}

func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("listen address %q is not a loopback address", addr)
	}
	return nil
}

type sendMessageInput struct {
	Entity   string   `json:"entity" jsonschema:"Chat ID, username, phone number or me"`
	Message  string   `json:"message,omitempty" jsonschema:"Text to send, used as the caption when files are attached"`
	FilePath []string `json:"file_path,omitempty" jsonschema:"Paths of local files to send"`
	ReplyTo  int      `json:"reply_to,omitempty" jsonschema:"Message ID to reply to"`
}

func (s *Server) sendMessageTool(ctx context.Context, _ *mcp.CallToolRequest, in *sendMessageInput) (*mcp.CallToolResult, any, error) {
	if in == nil || strings.TrimSpace(in.Entity) == "" {
		return errorResult(errors.New("entity is required")), nil, nil
	}
	if err := s.telegram.SendMessage(ctx, in.Entity, in.Message, in.FilePath, in.ReplyTo); err != nil {
		return s.failure("send_message", err), nil, nil
	}
	return textResult(fmt.Sprintf("Message sent to %s", in.Entity)), nil, nil
}

type searchDialogsInput struct {
	Query string `json:"query" jsonschema:"Text to look for in dialog titles, usernames and phone numbers"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of dialogs, defaults to 10"`
}

type searchDialogsOutput struct {
	Dialogs []domain.Dialog `json:"dialogs"`
}

func (s *Server) searchDialogsTool(ctx context.Context, _ *mcp.CallToolRequest, in *searchDialogsInput) (*mcp.CallToolResult, any, error) {
	if in == nil {
		in = &searchDialogsInput{}
	}
	limit := in.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	dialogs, err := s.telegram.SearchDialogs(ctx, in.Query, limit)
	if err != nil {
		return s.failure("search_dialogs", err), nil, nil
	}
	return jsonResult(searchDialogsOutput{Dialogs: dialogs})
}

type entityInput struct {
	Entity string `json:"entity" jsonschema:"Chat ID, username, phone number or me"`
}

type draftOutput struct {
	Draft string `json:"draft"`
}

func (s *Server) getDraftTool(ctx context.Context, _ *mcp.CallToolRequest, in *entityInput) (*mcp.CallToolResult, any, error) {
	if in == nil || strings.TrimSpace(in.Entity) == "" {
		return errorResult(errors.New("entity is required")), nil, nil
	}
	draft, err := s.telegram.GetDraft(ctx, in.Entity)
	if err != nil {
		return s.failure("get_draft", err), nil, nil
	}
	return textResult(draft), draftOutput{Draft: draft}, nil
}

type setDraftInput struct {
	Entity  string `json:"entity" jsonschema:"Chat ID, username, phone number or me"`
	Message string `json:"message" jsonschema:"Draft text, empty clears the draft"`
}

func (s *Server) setDraftTool(ctx context.Context, _ *mcp.CallToolRequest, in *setDraftInput) (*mcp.CallToolResult, any, error) {
	if in == nil || strings.TrimSpace(in.Entity) == "" {
		return errorResult(errors.New("entity is required")), nil, nil
	}
	if err := s.telegram.SetDraft(ctx, in.Entity, in.Message); err != nil {
		return s.failure("set_draft", err), nil, nil
	}
	return textResult(fmt.Sprintf("Draft saved for %s", in.Entity)), nil, nil
}

type getMessagesInput struct {
	Entity     string `json:"entity" jsonschema:"Chat ID, username, phone number or me"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of messages, defaults to 10"`
	StartDate  string `json:"start_date,omitempty" jsonschema:"Oldest message date (RFC 3339 or YYYY-MM-DD, UTC), defaults to 10 days ago"`
	EndDate    string `json:"end_date,omitempty" jsonschema:"Newest message date (RFC 3339 or YYYY-MM-DD, UTC), defaults to now"`
	Unread     bool   `json:"unread,omitempty" jsonschema:"Only return unread messages"`
	MarkAsRead bool   `json:"mark_as_read,omitempty" jsonschema:"Mark returned messages as read"`
}

func (s *Server) getMessagesTool(ctx context.Context, _ *mcp.CallToolRequest, in *getMessagesInput) (*mcp.CallToolResult, any, error) {
	if in == nil || strings.TrimSpace(in.Entity) == "" {
		return errorResult(errors.New("entity is required")), nil, nil
	}
	q, err := s.messagesQuery(in)
	if err != nil {
		return errorResult(err), nil, nil
	}
	messages, err := s.telegram.GetMessages(ctx, q)
	if err != nil {
		return s.failure("get_messages", err), nil, nil
	}
	return jsonResult(messages)
}

func (s *Server) messagesQuery(in *getMessagesInput) (domain.MessagesQuery, error) {
	now := s.now().UTC()
	start, err := parseDate(in.StartDate, now.AddDate(0, 0, -defaultWindowDays))
	if err != nil {
		return domain.MessagesQuery{}, fmt.Errorf("start_date: %w", err)
	}
	end, err := parseDate(in.EndDate, now)
	if err != nil {
		return domain.MessagesQuery{}, fmt.Errorf("end_date: %w", err)
	}
	if end.Before(start) {
		return domain.MessagesQuery{}, errors.New("end_date is before start_date")
	}
	limit := in.Limit
	if limit == 0 {
		limit = defaultLimit
	}
	return domain.MessagesQuery{
		Entity:     in.Entity,
		Limit:      limit,
		StartDate:  start,
		EndDate:    end,
		UnreadOnly: in.Unread,
		MarkAsRead: in.MarkAsRead,
	}, nil
}

type mediaDownloadInput struct {
	Entity    string `json:"entity" jsonschema:"Chat ID, username, phone number or me"`
	MessageID int    `json:"message_id" jsonschema:"ID of the message that carries the media"`
}

func (s *Server) mediaDownloadTool(ctx context.Context, _ *mcp.CallToolRequest, in *mediaDownloadInput) (*mcp.CallToolResult, any, error) {
	if in == nil || strings.TrimSpace(in.Entity) == "" || in.MessageID <= 0 {
		return errorResult(errors.New("entity and message_id are required")), nil, nil
	}
	downloaded, err := s.telegram.DownloadMedia(ctx, in.Entity, in.MessageID)
	if err != nil {
		return s.failure("media_download", err), nil, nil
	}
	if downloaded == nil {
		return textResult("No media found in this message"), nil, nil
	}
	return jsonResult(downloaded)
}

type messageFromLinkInput struct {
	Link string `json:"link" jsonschema:"Message link, for example https://t.me/c/1234567890/55"`
}

func (s *Server) messageFromLinkTool(ctx context.Context, _ *mcp.CallToolRequest, in *messageFromLinkInput) (*mcp.CallToolResult, any, error) {
	if in == nil || strings.TrimSpace(in.Link) == "" {
		return errorResult(errors.New("link is required")), nil, nil
	}
	msg, err := s.telegram.MessageFromLink(ctx, in.Link)
	if err != nil {
		return s.failure("message_from_link", err), nil, nil
	}
	if msg == nil {
		return textResult("No message found for this link"), nil, nil
	}
	return jsonResult(msg)
}

type searchContactsInput struct {
	Query string `json:"query,omitempty" jsonschema:"Text to look for in names, usernames and phone numbers"`
}

type searchContactsOutput struct {
	Contacts []domain.Contact `json:"contacts"`
}

func (s *Server) searchContactsTool(ctx context.Context, _ *mcp.CallToolRequest, in *searchContactsInput) (*mcp.CallToolResult, any, error) {
	query := ""
	if in != nil {
		query = in.Query
	}
	contacts, err := s.telegram.SearchContacts(ctx, query)
	if err != nil {
		return s.failure("search_contacts", err), nil, nil
	}
	return jsonResult(searchContactsOutput{Contacts: contacts})
}

func (s *Server) failure(tool string, err error) *mcp.CallToolResult {
	s.log.Warn("tool call failed", "tool", tool, "error", err)
	return errorResult(err)
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// jsonResult returns payload as structured content and as indented JSON text
// for clients that only read text.
func jsonResult(payload any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err)), nil, nil
	}
	return textResult(string(data)), payload, nil
}

func withOriginValidation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !isLocalOrigin(origin) {
			http.Error(w, "forbidden origin", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLocalOrigin(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
