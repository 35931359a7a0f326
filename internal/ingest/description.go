package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/taskledger/mailscan/internal/mailbox"
)

// bodyExcerptLimit caps the message body included in a description.
const bodyExcerptLimit = 2000

// provenanceMarker identifies tasks created by the scan pipeline.
const provenanceMarker = "[Auto-created from email scan]"

var sectionRule = strings.Repeat("-", 50)

// renderDescription builds the multi-section task description from a
// decoded message. The sender address line doubles as the
// deduplication anchor: TaskExists matches it as a substring.
func renderDescription(msg *mailbox.Message, category string, periodEnd *time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\n", msg.FromName)
	fmt.Fprintf(&b, "Email: %s\n", msg.FromAddr)
	fmt.Fprintf(&b, "Date: %s\n", msg.Date.Format("02 Jan 2006 15:04"))
	fmt.Fprintf(&b, "Category: %s\n", category)
	if periodEnd != nil {
		fmt.Fprintf(&b, "Company year end: %s\n", periodEnd.Format("02 Jan 2006"))
	}
	b.WriteString("\n")

	if len(msg.Attachments) > 0 {
		fmt.Fprintf(&b, "Attachments (%d):\n", len(msg.Attachments))
		for _, att := range msg.Attachments {
			fmt.Fprintf(&b, "  %s (%s)\n", att.Filename, mailbox.FormatBytes(att.Size))
		}
		b.WriteString("\n")
	}

	b.WriteString("Email content:\n")
	b.WriteString(sectionRule + "\n")
	if len(msg.Body) > bodyExcerptLimit {
		b.WriteString(msg.Body[:bodyExcerptLimit])
		b.WriteString("\n... (content truncated)")
	} else {
		b.WriteString(msg.Body)
	}
	b.WriteString("\n" + sectionRule + "\n\n")
	b.WriteString(provenanceMarker)

	return b.String()
}
