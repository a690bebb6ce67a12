package telegram

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/auth/qrlogin"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"golang.org/x/term"
	"rsc.io/qr"
)

var ErrSignUpUnsupported = errors.New("phone number is not registered, sign up with an official client first")

// Prompter asks the operator for login input.
type Prompter interface {
	Ask(ctx context.Context, prompt string) (string, error)
	AskSecret(ctx context.Context, prompt string) (string, error)
}

type TerminalPrompter struct {
	In  *os.File
	Out io.Writer

	reader *bufio.Reader
}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalPrompter) Ask(_ context.Context, prompt string) (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	fmt.Fprint(p.Out, prompt)
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *TerminalPrompter) AskSecret(ctx context.Context, prompt string) (string, error) {
	fd := int(p.In.Fd())
	if !term.IsTerminal(fd) {
		return p.Ask(ctx, prompt)
	}
	fmt.Fprint(p.Out, prompt)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// promptAuthenticator drives the code + 2FA flow for an existing account.
type promptAuthenticator struct {
	prompter Prompter
	phone    string
}

var _ auth.UserAuthenticator = promptAuthenticator{}

func (a promptAuthenticator) Phone(ctx context.Context) (string, error) {
	if a.phone != "" {
		return a.phone, nil
	}
	phone, err := a.prompter.Ask(ctx, "Phone number (international format): ")
	if err != nil {
		return "", err
	}
	if phone == "" {
		return "", errors.New("phone number is required")
	}
	return phone, nil
}

func (a promptAuthenticator) Password(ctx context.Context) (string, error) {
	return a.prompter.AskSecret(ctx, "Two-step verification password: ")
}

func (a promptAuthenticator) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	code, err := a.prompter.Ask(ctx, "Login code: ")
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", errors.New("telegram login code is required")
	}
	return code, nil
}

func (promptAuthenticator) AcceptTermsOfService(context.Context, tg.HelpTermsOfService) error {
	return ErrSignUpUnsupported
}

func (promptAuthenticator) SignUp(context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, ErrSignUpUnsupported
}

type LoginOptions struct {
	Prompter Prompter
	Phone    string
	// QRPath, when set, switches to QR login and receives the token as PNG.
	QRPath string
	Out    io.Writer
}

// Login authorizes the stored session unless it already is. It returns the
// display name of the signed in account.
func (g *Gateway) Login(ctx context.Context, opts LoginOptions) (string, error) {
	if opts.Prompter == nil {
		opts.Prompter = NewTerminalPrompter()
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}

	var display string
	err := g.client.Run(ctx, func(runCtx context.Context) error {
		status, err := g.client.Auth().Status(runCtx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			if opts.QRPath != "" {
				err = g.qrLogin(runCtx, opts)
			} else {
				flow := auth.NewFlow(promptAuthenticator{prompter: opts.Prompter, phone: opts.Phone}, auth.SendCodeOptions{})
				err = g.client.Auth().IfNecessary(runCtx, flow)
			}
			if err != nil {
				return err
			}
		}
		self, err := g.client.Self(runCtx)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		g.selfID.Store(self.ID)
		display = formatUserDisplay(self)
		return nil
	})
	if err != nil {
		return "", err
	}
	g.log.Info("telegram session authorized", "user", display, "session", g.session.Path)
	return display, nil
}

func (g *Gateway) qrLogin(ctx context.Context, opts LoginOptions) error {
	loggedIn := qrlogin.OnLoginToken(g.dispatcher)
	_, err := g.client.QR().Auth(ctx, loggedIn, func(_ context.Context, token qrlogin.Token) error {
		return writeQRToken(opts.QRPath, opts.Out, token.URL(), token.Expires())
	})
	if err == nil {
		return nil
	}
	if !isPasswordNeeded(err) {
		return err
	}
	password, err := opts.Prompter.AskSecret(ctx, "Two-step verification password: ")
	if err != nil {
		return err
	}
	_, err = g.client.Auth().Password(ctx, password)
	return err
}

func writeQRToken(path string, out io.Writer, url string, expires time.Time) error {
	code, err := qr.Encode(url, qr.M)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(path, code.PNG(), 0o600); err != nil {
		return err
	}
	fmt.Fprintf(out, "Scan %s with Telegram (Settings > Devices > Link Desktop Device)\n", path)
	fmt.Fprintf(out, "or open %s\n", url)
	fmt.Fprintf(out, "Token expires at %s\n", expires.Local().Format(time.Kitchen))
	return nil
}

func isPasswordNeeded(err error) bool {
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return true
	}
	if rpcErr, ok := tgerr.As(err); ok {
		return rpcErr.IsOneOf("SESSION_PASSWORD_NEEDED")
	}
	return false
}
