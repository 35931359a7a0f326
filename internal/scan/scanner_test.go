package scan

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskledger/mailscan/internal/classify"
	"github.com/taskledger/mailscan/internal/ingest"
	"github.com/taskledger/mailscan/internal/mailbox"
	"github.com/taskledger/mailscan/internal/model"
	"github.com/taskledger/mailscan/internal/store"
)

// fakeSession serves canned raw messages.
type fakeSession struct {
	messages  map[mailbox.Handle]*mailbox.RawMessage
	fetchErrs map[mailbox.Handle]error
	searchErr error
	closed    bool
}

func (s *fakeSession) Search(_ context.Context, _ mailbox.SearchFilter) ([]mailbox.Handle, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	handles := make([]mailbox.Handle, 0, len(s.messages))
	for h := range s.messages {
		handles = append(handles, h)
	}
	return handles, nil
}

func (s *fakeSession) Fetch(_ context.Context, h mailbox.Handle, _ ...mailbox.Part) (*mailbox.RawMessage, error) {
	if err := s.fetchErrs[h]; err != nil {
		return nil, err
	}
	return s.messages[h], nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// fakeTransport hands out fakeSessions keyed by account email and
// counts Open calls.
type fakeTransport struct {
	mu       sync.Mutex
	opens    int
	sessions map[string]*fakeSession
	openErrs map[string]error
}

func (t *fakeTransport) Open(_ context.Context, acct model.MailAccount) (mailbox.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opens++
	if err := t.openErrs[acct.Email]; err != nil {
		return nil, err
	}
	return t.sessions[acct.Email], nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

func rawMessage(subject, from, body string) *mailbox.RawMessage {
	msg := fmt.Sprintf(
		"From: %s\nSubject: %s\nDate: Mon, 02 Sep 2024 10:00:00 +0000\nContent-Type: text/plain; charset=utf-8\n\n%s\n",
		from, subject, body,
	)
	return &mailbox.RawMessage{Full: []byte(strings.ReplaceAll(msg, "\n", "\r\n"))}
}

func newTestScanner(t *testing.T, transport mailbox.Transport) (*Scanner, *store.SQLiteStore) {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	scanner := New(Config{}, s, transport, mailbox.NewDecoder(nil), ingest.NewGate(s, nil), nil)
	return scanner, s
}

func addAccount(t *testing.T, s *store.SQLiteStore, email string) model.MailAccount {
	t.Helper()

	require.NoError(t, s.UpsertMailAccount(context.Background(), model.MailAccount{
		Provider:       model.ProviderGmail,
		Email:          email,
		CredentialBlob: "c2VjcmV0",
	}))

	acct, err := s.GetMailAccount(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, acct)
	return *acct
}

func corporationTaxTasks(t *testing.T, s *store.SQLiteStore) []model.Task {
	t.Helper()

	id, found, err := s.FindCategoryIDByName(context.Background(), classify.CorporationTax)
	require.NoError(t, err)
	require.True(t, found)

	tasks, err := s.ListTasks(context.Background(), id)
	require.NoError(t, err)
	return tasks
}

func TestScanAllCreatesTasksAndCheckpoints(t *testing.T) {
	transport := &fakeTransport{sessions: map[string]*fakeSession{
		"alice@acme.co.uk": {messages: map[mailbox.Handle]*mailbox.RawMessage{
			1: rawMessage("Corporation tax return", "Alice <alice@acme.co.uk>",
				"Year end: 31/03/2024"),
			2: rawMessage("Lunch?", "Alice <alice@acme.co.uk>", "Usual place at one?"),
		}},
	}}

	scanner, s := newTestScanner(t, transport)
	acct := addAccount(t, s, "alice@acme.co.uk")

	scanner.ScanAll(context.Background())

	tasks := corporationTaxTasks(t, s)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Corporation tax return", tasks[0].CompanyName)
	assert.Equal(t, acct.ID, tasks[0].CreatedBy)

	updated, err := s.GetMailAccount(context.Background(), "alice@acme.co.uk")
	require.NoError(t, err)
	require.NotNil(t, updated.LastSync)

	assert.True(t, transport.sessions["alice@acme.co.uk"].closed)
}

func TestScanAllIsIdempotent(t *testing.T) {
	transport := &fakeTransport{sessions: map[string]*fakeSession{
		"alice@acme.co.uk": {messages: map[mailbox.Handle]*mailbox.RawMessage{
			1: rawMessage("CT600 reminder", "Alice <alice@acme.co.uk>", "Filing due."),
		}},
	}}

	scanner, s := newTestScanner(t, transport)
	addAccount(t, s, "alice@acme.co.uk")

	scanner.ScanAll(context.Background())
	scanner.ScanAll(context.Background())

	assert.Len(t, corporationTaxTasks(t, s), 1)
}

func TestScanNoKeywordMatchWritesNothing(t *testing.T) {
	transport := &fakeTransport{sessions: map[string]*fakeSession{
		"alice@acme.co.uk": {messages: map[mailbox.Handle]*mailbox.RawMessage{
			1: rawMessage("Team offsite", "hr@acme.co.uk", "Agenda attached."),
		}},
	}}

	scanner, s := newTestScanner(t, transport)
	addAccount(t, s, "alice@acme.co.uk")

	scanner.ScanAll(context.Background())

	for _, name := range []string{classify.CorporationTax, classify.SelfAssessment} {
		id, found, err := s.FindCategoryIDByName(context.Background(), name)
		require.NoError(t, err)
		require.True(t, found)

		tasks, err := s.ListTasks(context.Background(), id)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	}
}

func TestScanSkipsAccountAlreadyScanning(t *testing.T) {
	transport := &fakeTransport{sessions: map[string]*fakeSession{}}

	scanner, s := newTestScanner(t, transport)
	acct := addAccount(t, s, "alice@acme.co.uk")

	// Simulate an in-flight scan for this account.
	require.True(t, scanner.tryAcquire(acct.ID))

	require.NoError(t, scanner.scanAccount(context.Background(), acct))

	// The second request must perform no transport I/O at all.
	assert.Zero(t, transport.openCount())
}

func TestScanIsolatesAccountFailures(t *testing.T) {
	transport := &fakeTransport{
		openErrs: map[string]error{
			"broken@acme.co.uk": &mailbox.ConnectionError{
				Account: "broken@acme.co.uk",
				Err:     fmt.Errorf("authentication failed"),
			},
		},
		sessions: map[string]*fakeSession{
			"works@acme.co.uk": {messages: map[mailbox.Handle]*mailbox.RawMessage{
				1: rawMessage("Corp tax payment", "Bob <bob@client.example>", "Due soon."),
			}},
		},
	}

	scanner, s := newTestScanner(t, transport)
	addAccount(t, s, "broken@acme.co.uk")
	addAccount(t, s, "works@acme.co.uk")

	scanner.ScanAll(context.Background())

	// The failing account must not stop the rest of the batch.
	assert.Len(t, corporationTaxTasks(t, s), 1)
}

func TestScanOneBadMessageDoesNotStopTheRest(t *testing.T) {
	session := &fakeSession{
		messages:  make(map[mailbox.Handle]*mailbox.RawMessage),
		fetchErrs: map[mailbox.Handle]error{5: fmt.Errorf("truncated literal")},
	}
	for i := 1; i <= 10; i++ {
		session.messages[mailbox.Handle(i)] = rawMessage(
			fmt.Sprintf("Corporation tax return client %d", i),
			fmt.Sprintf("Client %d <client%d@example.com>", i, i),
			"Accounts attached.",
		)
	}

	transport := &fakeTransport{sessions: map[string]*fakeSession{
		"alice@acme.co.uk": session,
	}}

	scanner, s := newTestScanner(t, transport)
	addAccount(t, s, "alice@acme.co.uk")

	scanner.ScanAll(context.Background())

	assert.Len(t, corporationTaxTasks(t, s), 9)
}

func TestScanBatchesAreSerialized(t *testing.T) {
	scanner, _ := newTestScanner(t, &fakeTransport{})

	require.True(t, scanner.tryBeginBatch())
	assert.False(t, scanner.tryBeginBatch())

	scanner.endBatch()
	assert.True(t, scanner.tryBeginBatch())
	scanner.endBatch()
}

func TestSearchSincePrefersCheckpoint(t *testing.T) {
	scanner, _ := newTestScanner(t, &fakeTransport{})

	now := time.Date(2024, time.September, 2, 12, 0, 0, 0, time.UTC)
	scanner.now = func() time.Time { return now }

	// Never-synced accounts get the full window.
	since := scanner.searchSince(model.MailAccount{})
	assert.Equal(t, now.Add(-7*24*time.Hour), since)

	// A recent checkpoint narrows the search.
	lastSync := now.Add(-2 * time.Hour)
	since = scanner.searchSince(model.MailAccount{LastSync: &lastSync})
	assert.Equal(t, lastSync, since)

	// A stale checkpoint never widens it.
	stale := now.Add(-30 * 24 * time.Hour)
	since = scanner.searchSince(model.MailAccount{LastSync: &stale})
	assert.Equal(t, now.Add(-7*24*time.Hour), since)
}
