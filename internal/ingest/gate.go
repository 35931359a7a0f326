// Package ingest is the deduplication and persistence gate at the end
// of the scan pipeline: it decides whether a classified message
// becomes a new task and renders the task description.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/taskledger/mailscan/internal/mailbox"
	"github.com/taskledger/mailscan/internal/model"
	"github.com/taskledger/mailscan/internal/store"
)

// companyNameLimit caps the subject-derived company name.
const companyNameLimit = 100

// Outcome is the result of an UpsertIfNew call.
type Outcome int

const (
	// Created means a new task row was inserted.
	Created Outcome = iota

	// AlreadyExists means a matching task was found and nothing was
	// written.
	AlreadyExists

	// CategoryMissing means the target category does not exist in the
	// store. The pipeline never creates categories; this is a
	// configuration problem.
	CategoryMissing
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already exists"
	case CategoryMissing:
		return "category missing"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Gate checks classified messages against existing tasks and inserts
// new ones.
type Gate struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewGate creates a persistence gate over the given store.
func NewGate(s store.Store, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: s, logger: logger, now: time.Now}
}

// UpsertIfNew inserts a task for the message unless one already
// exists for the same category, truncated subject, and sender
// address. The existence check matches the sender as a substring of
// the stored description, so generic subjects from the same sender
// collapse into one task.
func (g *Gate) UpsertIfNew(
	ctx context.Context,
	category string,
	msg *mailbox.Message,
	periodEnd *time.Time,
	dueDate time.Time,
	createdBy string,
) (Outcome, error) {
	categoryID, found, err := g.store.FindCategoryIDByName(ctx, category)
	if err != nil {
		return CategoryMissing, fmt.Errorf("looking up category %q: %w", category, err)
	}
	if !found {
		return CategoryMissing, nil
	}

	companyName := truncate(msg.Subject, companyNameLimit)

	exists, err := g.store.TaskExists(ctx, categoryID, companyName, msg.FromAddr)
	if err != nil {
		return AlreadyExists, fmt.Errorf("checking for existing task: %w", err)
	}
	if exists {
		return AlreadyExists, nil
	}

	task := model.Task{
		CategoryID:  categoryID,
		CompanyName: companyName,
		Description: renderDescription(msg, category, periodEnd),
		AssignedTo:  nil,
		Priority:    model.PriorityMedium,
		Progress:    model.ProgressNotStarted,
		DueDate:     dueDate,
		CreatedBy:   createdBy,
		CreatedAt:   g.now().UTC(),
	}

	if _, err := g.store.InsertTask(ctx, task); err != nil {
		return Created, fmt.Errorf("inserting task %q: %w", companyName, err)
	}
	return Created, nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
