package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/taskledger/mailscan/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite
// database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// ListMailAccounts returns all configured mail accounts.
func (s *SQLiteStore) ListMailAccounts(ctx context.Context) ([]model.MailAccount, error) {
	var accounts []model.MailAccount
	err := s.db.SelectContext(ctx, &accounts,
		"SELECT * FROM mail_accounts ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("querying mail accounts: %w", err)
	}
	return accounts, nil
}

// GetMailAccount returns the account configured for the given mailbox
// address, or nil if none exists.
func (s *SQLiteStore) GetMailAccount(ctx context.Context, email string) (*model.MailAccount, error) {
	var acct model.MailAccount
	err := s.db.GetContext(ctx, &acct,
		"SELECT * FROM mail_accounts WHERE email = ?", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting mail account %s: %w", email, err)
	}
	return &acct, nil
}

// UpsertMailAccount inserts or replaces a mail account keyed by its
// mailbox address. A missing ID is generated.
func (s *SQLiteStore) UpsertMailAccount(ctx context.Context, acct model.MailAccount) error {
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mail_accounts (id, provider, email, credential_blob, last_sync, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			provider = excluded.provider,
			credential_blob = excluded.credential_blob`,
		acct.ID, string(acct.Provider), acct.Email,
		acct.CredentialBlob, acct.LastSync, acct.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting mail account %s: %w", acct.Email, err)
	}
	return nil
}

// DeleteMailAccount removes the account for the given mailbox address.
func (s *SQLiteStore) DeleteMailAccount(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM mail_accounts WHERE email = ?", email)
	if err != nil {
		return fmt.Errorf("deleting mail account %s: %w", email, err)
	}
	return nil
}

// UpdateLastSync records the completion time of a scan for an account.
func (s *SQLiteStore) UpdateLastSync(ctx context.Context, accountID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE mail_accounts SET last_sync = ? WHERE id = ?",
		t.UTC(), accountID)
	if err != nil {
		return fmt.Errorf("updating last sync for %s: %w", accountID, err)
	}
	return nil
}

// FindCategoryIDByName looks up a category by its exact name.
func (s *SQLiteStore) FindCategoryIDByName(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"SELECT id FROM categories WHERE name = ?", name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("finding category %q: %w", name, err)
	}
	return id, true, nil
}

// TaskExists reports whether a task already exists for the given
// category, company name, and sender address. The sender address is
// matched as a substring of the stored description; this mirrors how
// descriptions are rendered and is deliberately a heuristic.
func (s *SQLiteStore) TaskExists(ctx context.Context, categoryID int64, companyName, senderAddress string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM tasks
		WHERE category_id = ? AND company_name = ? AND description LIKE ?`,
		categoryID, companyName, "%"+senderAddress+"%")
	if err != nil {
		return false, fmt.Errorf("checking existing task: %w", err)
	}
	return count > 0, nil
}

// InsertTask inserts a new task row and returns its ID.
func (s *SQLiteStore) InsertTask(ctx context.Context, task model.Task) (int64, error) {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			category_id, company_name, description, assigned_to,
			priority, progress, due_date, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.CategoryID, task.CompanyName, task.Description, task.AssignedTo,
		task.Priority, task.Progress, task.DueDate.UTC(),
		task.CreatedBy, task.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting task %q: %w", task.CompanyName, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted task id: %w", err)
	}
	return id, nil
}

// ListTasks returns all tasks in a category, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, categoryID int64) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.SelectContext(ctx, &tasks,
		"SELECT * FROM tasks WHERE category_id = ? ORDER BY created_at DESC, id DESC",
		categoryID)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	return tasks, nil
}
