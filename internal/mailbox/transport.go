package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/taskledger/mailscan/internal/credential"
	"github.com/taskledger/mailscan/internal/model"
)

// defaultConnectTimeout bounds dial plus authentication.
const defaultConnectTimeout = 10 * time.Second

// Transport opens authenticated mailbox sessions.
type Transport interface {
	Open(ctx context.Context, account model.MailAccount) (Session, error)
}

// Session is one authenticated, folder-selected mailbox connection.
// Close must be called on every exit path; a session never outlives
// the scan pass that opened it.
type Session interface {
	Search(ctx context.Context, filter SearchFilter) ([]Handle, error)
	Fetch(ctx context.Context, handle Handle, parts ...Part) (*RawMessage, error)
	Close() error
}

// CredentialFunc resolves a stored credential blob into a secret.
type CredentialFunc func(blob string) (string, error)

// TransportConfig holds the settings for the IMAP transport.
type TransportConfig struct {
	// Providers maps a provider name to its IMAPS host:port endpoint.
	Providers map[string]string

	// Folder is the mailbox folder to select after login.
	Folder string

	// ConnectTimeout bounds connect and authentication.
	ConnectTimeout time.Duration

	// InsecureSkipVerify disables TLS certificate validation. It
	// exists as an explicit opt-out only; the default is strict.
	InsecureSkipVerify bool

	// Credentials resolves account credential blobs. Defaults to
	// credential.Resolve.
	Credentials CredentialFunc
}

// IMAPTransport implements Transport over IMAPS using go-imap.
type IMAPTransport struct {
	providers          map[string]string
	folder             string
	connectTimeout     time.Duration
	insecureSkipVerify bool
	resolve            CredentialFunc
	logger             *slog.Logger
}

// NewIMAPTransport creates a transport from the given configuration.
func NewIMAPTransport(cfg TransportConfig, logger *slog.Logger) *IMAPTransport {
	t := &IMAPTransport{
		providers:          cfg.Providers,
		folder:             cfg.Folder,
		connectTimeout:     cfg.ConnectTimeout,
		insecureSkipVerify: cfg.InsecureSkipVerify,
		resolve:            cfg.Credentials,
		logger:             logger,
	}
	if t.folder == "" {
		t.folder = "INBOX"
	}
	if t.connectTimeout <= 0 {
		t.connectTimeout = defaultConnectTimeout
	}
	if t.resolve == nil {
		t.resolve = credential.Resolve
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Open dials the account's provider endpoint, authenticates, and
// selects the configured folder. The caller owns the returned session
// and must Close it.
func (t *IMAPTransport) Open(ctx context.Context, account model.MailAccount) (Session, error) {
	addr, ok := t.providers[string(account.Provider)]
	if !ok {
		return nil, &ConnectionError{
			Account: account.Email,
			Err:     fmt.Errorf("unknown provider %q", account.Provider),
		}
	}

	password, err := t.resolve(account.CredentialBlob)
	if err != nil {
		return nil, &ConnectionError{
			Account: account.Email,
			Err:     fmt.Errorf("resolving credentials: %w", err),
		}
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, &ConnectionError{
			Account: account.Email,
			Err:     fmt.Errorf("invalid provider endpoint %q: %w", addr, err),
		}
	}

	tlsConfig := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: t.insecureSkipVerify,
	}
	if t.insecureSkipVerify {
		t.logger.Warn("TLS certificate validation disabled", "host", host)
	}

	dialer := &net.Dialer{Timeout: t.connectTimeout}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < t.connectTimeout {
		dialer.Timeout = time.Until(deadline)
	}

	conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	if err != nil {
		return nil, &ConnectionError{
			Account: account.Email,
			Err:     fmt.Errorf("dialing %s: %w", addr, err),
		}
	}

	client := imapclient.New(conn, &imapclient.Options{})

	// Authentication shares the connect deadline so a stalled server
	// cannot hold the scan open.
	_ = conn.SetDeadline(time.Now().Add(t.connectTimeout))
	if err := client.Login(account.Email, password).Wait(); err != nil {
		_ = client.Close()
		return nil, &ConnectionError{
			Account: account.Email,
			Err:     fmt.Errorf("authentication failed: %w", err),
		}
	}
	_ = conn.SetDeadline(time.Time{})

	if _, err := client.Select(t.folder, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &ConnectionError{
			Account: account.Email,
			Err:     fmt.Errorf("selecting %s: %w", t.folder, err),
		}
	}

	return &imapSession{client: client}, nil
}

// imapSession wraps an authenticated go-imap client.
type imapSession struct {
	client *imapclient.Client
}

// Search returns handles for messages matching the filter, combining
// the flag and date bounds with logical AND.
func (s *imapSession) Search(_ context.Context, filter SearchFilter) ([]Handle, error) {
	criteria := &imap.SearchCriteria{}
	if filter.UnseenOnly {
		criteria.NotFlag = []imap.Flag{imap.FlagSeen}
	}
	if !filter.Since.IsZero() {
		criteria.Since = filter.Since
	}

	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	handles := make([]Handle, 0, len(uids))
	for _, uid := range uids {
		handles = append(handles, Handle(uid))
	}
	return handles, nil
}

// Fetch retrieves the requested parts of one message without marking
// it as seen.
func (s *imapSession) Fetch(_ context.Context, handle Handle, parts ...Part) (*RawMessage, error) {
	if len(parts) == 0 {
		parts = []Part{PartFull}
	}

	var headerSection, textSection, fullSection *imap.FetchItemBodySection
	var sections []*imap.FetchItemBodySection
	for _, p := range parts {
		switch p {
		case PartHeader:
			headerSection = &imap.FetchItemBodySection{
				Specifier: imap.PartSpecifierHeader,
				Peek:      true,
			}
			sections = append(sections, headerSection)
		case PartText:
			textSection = &imap.FetchItemBodySection{
				Specifier: imap.PartSpecifierText,
				Peek:      true,
			}
			sections = append(sections, textSection)
		case PartFull:
			fullSection = &imap.FetchItemBodySection{Peek: true}
			sections = append(sections, fullSection)
		}
	}

	fetchOpts := &imap.FetchOptions{
		UID:         true,
		Envelope:    true,
		BodySection: sections,
	}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(imap.UID(handle)), fetchOpts)

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message %d not found", handle)
	}

	buf, err := msg.Collect()
	if err != nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("collecting message %d: %w", handle, err)
	}

	raw := &RawMessage{
		UID:      handle,
		Envelope: buf.Envelope,
	}
	if headerSection != nil {
		raw.Header = buf.FindBodySection(headerSection)
	}
	if textSection != nil {
		raw.Text = buf.FindBodySection(textSection)
	}
	if fullSection != nil {
		raw.Full = buf.FindBodySection(fullSection)
	}

	if err := fetchCmd.Close(); err != nil {
		return raw, fmt.Errorf("closing fetch: %w", err)
	}
	return raw, nil
}

// Close logs out and releases the connection.
func (s *imapSession) Close() error {
	return s.client.Logout().Wait()
}
