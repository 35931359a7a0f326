package model

import "time"

// Provider identifies a supported mailbox provider.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	return p == ProviderGmail || p == ProviderOutlook
}

// MailAccount holds the mailbox settings for one tracked account.
// The scan pipeline treats every field as read-only except LastSync,
// which is checkpointed after each completed scan.
type MailAccount struct {
	// ID is the unique identifier for this account.
	ID string `db:"id"`

	// Provider selects the IMAP endpoint ("gmail" or "outlook").
	Provider Provider `db:"provider"`

	// Email is the mailbox address, also used as the login username.
	Email string `db:"email"`

	// CredentialBlob is the opaque stored credential. It is resolved
	// into a usable secret only by the credential package on behalf
	// of the mail transport.
	CredentialBlob string `db:"credential_blob"`

	// LastSync is the completion time of the most recent scan, or
	// nil if the account has never been scanned.
	LastSync *time.Time `db:"last_sync"`

	// CreatedAt is when the account was configured.
	CreatedAt time.Time `db:"created_at"`
}
