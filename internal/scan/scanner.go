// Package scan orchestrates mailbox scans: it iterates configured
// accounts, enforces per-account mutual exclusion, and runs each
// message through decode, classification, deadline derivation, and
// the persistence gate. Failures are isolated per account and per
// message; a scan batch never fails as a whole.
package scan

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/taskledger/mailscan/internal/classify"
	"github.com/taskledger/mailscan/internal/deadline"
	"github.com/taskledger/mailscan/internal/ingest"
	"github.com/taskledger/mailscan/internal/mailbox"
	"github.com/taskledger/mailscan/internal/model"
	"github.com/taskledger/mailscan/internal/store"
)

// Config holds the scan tuning knobs.
type Config struct {
	// Window is how far back to search for accounts that have never
	// been synced.
	Window time.Duration

	// UnseenOnly restricts the search to unread messages.
	UnseenOnly bool

	// AccountTimeout bounds one account's entire scan pass.
	AccountTimeout time.Duration
}

// Scanner runs scan batches over all configured mail accounts.
type Scanner struct {
	cfg       Config
	store     store.Store
	transport mailbox.Transport
	decoder   *mailbox.Decoder
	gate      *ingest.Gate
	logger    *slog.Logger
	now       func() time.Time

	// mu guards the batch flag and the per-account exclusion set.
	// These are the only mutable shared state in the pipeline; all
	// other state is local to one account's scan pass.
	mu       sync.Mutex
	batch    bool
	scanning map[string]bool
}

// New creates a scanner.
func New(
	cfg Config,
	s store.Store,
	transport mailbox.Transport,
	decoder *mailbox.Decoder,
	gate *ingest.Gate,
	logger *slog.Logger,
) *Scanner {
	if cfg.Window <= 0 {
		cfg.Window = 7 * 24 * time.Hour
	}
	if cfg.AccountTimeout <= 0 {
		cfg.AccountTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		cfg:       cfg,
		store:     s,
		transport: transport,
		decoder:   decoder,
		gate:      gate,
		logger:    logger,
		now:       time.Now,
		scanning:  make(map[string]bool),
	}
}

// ScanAll scans every configured account in sequence. It never
// returns an error: per-account failures are logged and the batch
// moves on. Batches are serialized, so a manual trigger firing while
// the timer's batch is still running is a logged no-op.
func (s *Scanner) ScanAll(ctx context.Context) {
	if !s.tryBeginBatch() {
		s.logger.Info("scan batch already running, skipping trigger")
		return
	}
	defer s.endBatch()

	accounts, err := s.store.ListMailAccounts(ctx)
	if err != nil {
		s.logger.Error("listing mail accounts failed", "error", err)
		return
	}

	s.logger.Info("scanning mailboxes", "accounts", len(accounts))

	for _, acct := range accounts {
		if ctx.Err() != nil {
			s.logger.Warn("scan batch cancelled", "error", ctx.Err())
			return
		}
		if err := s.scanAccount(ctx, acct); err != nil {
			s.logger.Error("account scan failed",
				"account", acct.ID, "email", acct.Email, "error", err)
		}
	}
}

// scanAccount runs one account's scan pass. The exclusion flag is
// held for the full duration; the session is closed on every exit
// path.
func (s *Scanner) scanAccount(ctx context.Context, acct model.MailAccount) error {
	if !s.tryAcquire(acct.ID) {
		s.logger.Info("scan already in progress, skipping",
			"account", acct.ID, "email", acct.Email)
		return nil
	}
	defer s.release(acct.ID)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.AccountTimeout)
	defer cancel()

	s.logger.Info("scanning mailbox", "account", acct.ID, "email", acct.Email)

	session, err := s.transport.Open(ctx, acct)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			s.logger.Warn("closing mailbox session failed",
				"account", acct.ID, "error", err)
		}
	}()

	handles, err := session.Search(ctx, mailbox.SearchFilter{
		UnseenOnly: s.cfg.UnseenOnly,
		Since:      s.searchSince(acct),
	})
	if err != nil {
		return err
	}

	s.logger.Info("messages found",
		"account", acct.ID, "email", acct.Email, "count", len(handles))

	for _, handle := range handles {
		if ctx.Err() != nil {
			break
		}
		s.processMessage(ctx, session, acct, handle)
	}

	if err := s.store.UpdateLastSync(ctx, acct.ID, s.now()); err != nil {
		s.logger.Error("updating last sync failed",
			"account", acct.ID, "error", err)
	}

	s.logger.Info("completed scan", "account", acct.ID, "email", acct.Email)
	return nil
}

// processMessage runs one message through the pipeline. Every failure
// mode is contained here: a fetch error, a decode panic, a missing
// category, or a store write failure skips this message only.
func (s *Scanner) processMessage(
	ctx context.Context,
	session mailbox.Session,
	acct model.MailAccount,
	handle mailbox.Handle,
) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic processing message",
				"account", acct.ID, "uid", uint32(handle), "panic", r)
		}
	}()

	raw, err := session.Fetch(ctx, handle, mailbox.PartHeader, mailbox.PartText, mailbox.PartFull)
	if err != nil {
		s.logger.Warn("fetching message failed, skipping",
			"account", acct.ID, "uid", uint32(handle), "error", err)
		return
	}

	msg := s.decoder.Decode(raw)

	category, ok := classify.Classify(msg.Subject, msg.Body)
	if !ok {
		s.logger.Debug("no matching category",
			"account", acct.ID, "subject", msg.Subject)
		return
	}

	var periodEnd *time.Time
	if t, found := deadline.ExtractPeriodEnd(msg.Body); found {
		periodEnd = &t
	}
	dueDate := deadline.DueDate(category, periodEnd, s.now())

	outcome, err := s.gate.UpsertIfNew(ctx, category, msg, periodEnd, dueDate, acct.ID)
	if err != nil {
		s.logger.Error("persisting task failed, will retry next scan",
			"account", acct.ID, "subject", msg.Subject, "error", err)
		return
	}

	switch outcome {
	case ingest.Created:
		s.logger.Info("task created from message",
			"account", acct.ID, "subject", msg.Subject,
			"category", category, "due", dueDate.Format("2006-01-02"))
	case ingest.AlreadyExists:
		s.logger.Info("task already exists, skipping",
			"account", acct.ID, "subject", msg.Subject)
	case ingest.CategoryMissing:
		s.logger.Warn("category not configured, skipping message",
			"account", acct.ID, "category", category)
	}
}

// searchSince picks the search lower bound: the last sync checkpoint
// when one exists and is more recent than the default window.
func (s *Scanner) searchSince(acct model.MailAccount) time.Time {
	since := s.now().Add(-s.cfg.Window)
	if acct.LastSync != nil && acct.LastSync.After(since) {
		since = *acct.LastSync
	}
	return since
}

func (s *Scanner) tryBeginBatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batch {
		return false
	}
	s.batch = true
	return true
}

func (s *Scanner) endBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = false
}

func (s *Scanner) tryAcquire(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanning[accountID] {
		return false
	}
	s.scanning[accountID] = true
	return true
}

func (s *Scanner) release(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scanning, accountID)
}
