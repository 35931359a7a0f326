package store

import (
	"context"
	"time"

	"github.com/taskledger/mailscan/internal/model"
)

// Store defines the persistence contract consumed by the mail scan
// pipeline and the account admin surface.
type Store interface {
	// === Mail accounts ===

	ListMailAccounts(ctx context.Context) ([]model.MailAccount, error)
	GetMailAccount(ctx context.Context, email string) (*model.MailAccount, error)
	UpsertMailAccount(ctx context.Context, acct model.MailAccount) error
	DeleteMailAccount(ctx context.Context, email string) error

	// UpdateLastSync checkpoints the completion time of a scan.
	UpdateLastSync(ctx context.Context, accountID string, t time.Time) error

	// === Categories ===

	FindCategoryIDByName(ctx context.Context, name string) (int64, bool, error)

	// === Tasks ===

	// TaskExists reports whether a task already exists for the given
	// category, company name (truncated subject), and sender address.
	// The sender is matched as a substring of the task description.
	TaskExists(ctx context.Context, categoryID int64, companyName, senderAddress string) (bool, error)

	InsertTask(ctx context.Context, task model.Task) (int64, error)
	ListTasks(ctx context.Context, categoryID int64) ([]model.Task, error)

	Close() error
}
