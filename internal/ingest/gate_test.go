package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskledger/mailscan/internal/classify"
	"github.com/taskledger/mailscan/internal/mailbox"
	"github.com/taskledger/mailscan/internal/store"
)

func newGate(t *testing.T) (*Gate, *store.SQLiteStore) {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return NewGate(s, nil), s
}

func testMessage() *mailbox.Message {
	return &mailbox.Message{
		Subject:  "Acme Ltd corporation tax return",
		FromName: "Alice Smith",
		FromAddr: "alice@acme.co.uk",
		Date:     time.Date(2024, time.September, 2, 10, 0, 0, 0, time.UTC),
		Body:     "Year end: 31/03/2024. Please prepare the CT600.",
		Attachments: []mailbox.Attachment{
			{Filename: "accounts.pdf", Size: 1536},
		},
	}
}

func TestUpsertIfNewCreatesThenDeduplicates(t *testing.T) {
	gate, s := newGate(t)
	ctx := context.Background()

	msg := testMessage()
	periodEnd := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)
	dueDate := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)

	outcome, err := gate.UpsertIfNew(ctx, classify.CorporationTax, msg, &periodEnd, dueDate, "account-1")
	require.NoError(t, err)
	assert.Equal(t, Created, outcome)

	// Re-ingesting the same message must be a no-op.
	outcome, err = gate.UpsertIfNew(ctx, classify.CorporationTax, msg, &periodEnd, dueDate, "account-1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyExists, outcome)

	categoryID, found, err := s.FindCategoryIDByName(ctx, classify.CorporationTax)
	require.NoError(t, err)
	require.True(t, found)

	tasks, err := s.ListTasks(ctx, categoryID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, "Acme Ltd corporation tax return", task.CompanyName)
	assert.Equal(t, "medium", task.Priority)
	assert.Equal(t, "not-started", task.Progress)
	assert.Nil(t, task.AssignedTo)
	assert.Equal(t, "account-1", task.CreatedBy)
	assert.Contains(t, task.Description, "Email: alice@acme.co.uk")
	assert.Contains(t, task.Description, "Company year end: 31 Mar 2024")
	assert.Contains(t, task.Description, "accounts.pdf (1.5 KB)")
	assert.Contains(t, task.Description, "[Auto-created from email scan]")
}

func TestUpsertIfNewCategoryMissing(t *testing.T) {
	gate, s := newGate(t)
	ctx := context.Background()

	outcome, err := gate.UpsertIfNew(ctx, "Payroll", testMessage(), nil,
		time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), "account-1")
	require.NoError(t, err)
	assert.Equal(t, CategoryMissing, outcome)

	// Nothing may be written for an unconfigured category.
	for _, name := range []string{classify.CorporationTax, classify.SelfAssessment} {
		id, found, err := s.FindCategoryIDByName(ctx, name)
		require.NoError(t, err)
		require.True(t, found)

		tasks, err := s.ListTasks(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	}
}

func TestUpsertIfNewTruncatesLongSubject(t *testing.T) {
	gate, s := newGate(t)
	ctx := context.Background()

	msg := testMessage()
	msg.Subject = strings.Repeat("corporation tax ", 20) // 320 chars

	outcome, err := gate.UpsertIfNew(ctx, classify.CorporationTax, msg, nil,
		time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), "account-1")
	require.NoError(t, err)
	require.Equal(t, Created, outcome)

	categoryID, _, err := s.FindCategoryIDByName(ctx, classify.CorporationTax)
	require.NoError(t, err)

	tasks, err := s.ListTasks(ctx, categoryID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Len(t, tasks[0].CompanyName, 100)
}

func TestDescriptionTruncatesLongBody(t *testing.T) {
	msg := testMessage()
	msg.Body = strings.Repeat("x", 2500)

	desc := renderDescription(msg, classify.CorporationTax, nil)

	assert.Contains(t, desc, "... (content truncated)")
	assert.NotContains(t, desc, strings.Repeat("x", 2001))
	assert.Contains(t, desc, "[Auto-created from email scan]")
}
