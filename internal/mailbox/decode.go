package mailbox

import (
	"bytes"
	"io"
	"log/slog"
	"math"
	"mime"
	netmail "net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/k3a/html2text"
)

// Sentinel values used when a message field cannot be recovered.
const (
	NoSubject     = "No Subject"
	UnknownSender = "Unknown Sender"
	NoEmail       = "No email"
	NoContent     = "No content"
)

// Message is the decoded, immutable form of a fetched message.
type Message struct {
	Subject     string
	FromName    string
	FromAddr    string
	Date        time.Time
	Body        string
	Attachments []Attachment
}

// Attachment holds metadata about a message attachment.
type Attachment struct {
	Filename string
	Size     int64
}

// Decoder turns raw fetched messages into structured ones. Decoding
// never fails: any parse failure degrades the affected field to its
// sentinel value.
type Decoder struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewDecoder creates a decoder that logs parse degradations.
func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger, now: time.Now}
}

// parsed holds whatever the full MIME parse managed to recover.
type parsed struct {
	subject     string
	fromName    string
	fromAddr    string
	date        time.Time
	textBody    string
	htmlBody    string
	attachments []Attachment
}

// Decode extracts structured content from a raw message. Each field
// resolves through an ordered list of strategies, short-circuiting on
// the first success.
func (d *Decoder) Decode(raw *RawMessage) *Message {
	p := d.parseMIME(raw)

	msg := &Message{
		Attachments: p.attachments,
	}

	msg.Subject = firstOf(NoSubject,
		func() (string, bool) { return p.subject, strings.TrimSpace(p.subject) != "" },
		func() (string, bool) { return headerSubject(raw) },
		func() (string, bool) { return envelopeSubject(raw) },
	)

	rawName, rawAddr, rawOK := rawFromHeader(raw)
	msg.FromName = firstOf(UnknownSender,
		func() (string, bool) { return p.fromName, p.fromName != "" },
		func() (string, bool) { return envelopeFromName(raw) },
		func() (string, bool) { return rawName, rawOK && rawName != "" },
	)
	msg.FromAddr = firstOf(NoEmail,
		func() (string, bool) { return p.fromAddr, p.fromAddr != "" },
		func() (string, bool) { return envelopeFromAddr(raw) },
		func() (string, bool) { return rawAddr, rawOK },
	)

	switch {
	case !p.date.IsZero():
		msg.Date = p.date
	case raw.Envelope != nil && !raw.Envelope.Date.IsZero():
		msg.Date = raw.Envelope.Date
	default:
		msg.Date = d.now()
	}

	switch {
	case strings.TrimSpace(p.textBody) != "":
		msg.Body = cleanPlainText(p.textBody)
	case strings.TrimSpace(p.htmlBody) != "":
		msg.Body = stripHTML(p.htmlBody)
	}
	if msg.Body == "" {
		msg.Body = NoContent
	}

	return msg
}

// parseMIME runs the primary go-message parse. Failures are logged
// and leave the returned struct partially (or entirely) empty so the
// fallback strategies take over.
func (d *Decoder) parseMIME(raw *RawMessage) parsed {
	var p parsed

	full := raw.Bytes()
	if len(full) == 0 {
		return p
	}

	mr, err := mail.CreateReader(bytes.NewReader(full))
	if err != nil {
		d.logger.Debug("message parse failed, degrading to raw text",
			"uid", uint32(raw.UID), "error", err)
		// Best effort: treat the text section, if fetched, as the body.
		p.textBody = string(raw.Text)
		return p
	}
	defer mr.Close()

	if subject, err := mr.Header.Subject(); err == nil {
		p.subject = subject
	}
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		p.fromName = addrs[0].Name
		p.fromAddr = addrs[0].Address
	}
	if date, err := mr.Header.Date(); err == nil {
		p.date = date
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			d.logger.Debug("stopping at unreadable message part",
				"uid", uint32(raw.UID), "error", err)
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(contentType, "text/plain") && p.textBody == "":
				p.textBody = string(body)
			case strings.HasPrefix(contentType, "text/html") && p.htmlBody == "":
				p.htmlBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}
			p.attachments = append(p.attachments, Attachment{
				Filename: filename,
				Size:     int64(len(body)),
			})
		}
	}

	return p
}

// firstOf returns the first strategy result that succeeds, or the
// fallback sentinel.
func firstOf(fallback string, strategies ...func() (string, bool)) string {
	for _, strategy := range strategies {
		if v, ok := strategy(); ok {
			return v
		}
	}
	return fallback
}

// headerSubject parses the header-only fetch section for a Subject
// line, decoding any RFC 2047 encoded words.
func headerSubject(raw *RawMessage) (string, bool) {
	if len(raw.Header) == 0 {
		return "", false
	}

	hdr := append(append([]byte{}, raw.Header...), "\r\n\r\n"...)
	m, err := netmail.ReadMessage(bytes.NewReader(hdr))
	if err != nil {
		return "", false
	}

	subject := m.Header.Get("Subject")
	if subject == "" {
		return "", false
	}

	dec := new(mime.WordDecoder)
	if decoded, err := dec.DecodeHeader(subject); err == nil {
		subject = decoded
	}
	return subject, true
}

func envelopeSubject(raw *RawMessage) (string, bool) {
	if raw.Envelope == nil || strings.TrimSpace(raw.Envelope.Subject) == "" {
		return "", false
	}
	return raw.Envelope.Subject, true
}

func envelopeFromName(raw *RawMessage) (string, bool) {
	if raw.Envelope == nil || len(raw.Envelope.From) == 0 {
		return "", false
	}
	from := raw.Envelope.From[0]
	if from.Name != "" {
		return from.Name, true
	}
	if addr := from.Addr(); addr != "" {
		return addr, true
	}
	return "", false
}

func envelopeFromAddr(raw *RawMessage) (string, bool) {
	if raw.Envelope == nil || len(raw.Envelope.From) == 0 {
		return "", false
	}
	addr := raw.Envelope.From[0].Addr()
	return addr, addr != ""
}

// angleAddr matches an address in angle brackets on a raw From line.
var angleAddr = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)

// rawFromHeader regex-extracts the sender from the raw From header
// line, the last resort before the sentinels.
func rawFromHeader(raw *RawMessage) (name, addr string, ok bool) {
	src := raw.Header
	if len(src) == 0 {
		src = raw.Bytes()
	}
	if len(src) == 0 {
		return "", "", false
	}

	for _, line := range strings.Split(string(src), "\n") {
		if len(line) < 5 || !strings.EqualFold(line[:5], "from:") {
			continue
		}
		m := angleAddr.FindStringSubmatch(line)
		if m == nil {
			return "", "", false
		}
		name = strings.TrimSpace(strings.Replace(line[5:], m[0], "", 1))
		name = strings.Trim(name, `"`)
		return name, m[1], true
	}
	return "", "", false
}

// boundaryLine matches MIME boundary delimiter lines that sometimes
// leak into badly nested plain-text parts.
var boundaryLine = regexp.MustCompile(`^--[=_A-Za-z0-9.()+\-]+(--)?$`)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// cleanPlainText removes stray MIME artifacts from a decoded
// plain-text body: boundary markers, Content-Type/charset header
// lines, and runs of three or more newlines.
func cleanPlainText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if boundaryLine.MatchString(trimmed) {
			continue
		}
		if strings.HasPrefix(trimmed, "Content-Type:") || strings.Contains(trimmed, "charset=") {
			continue
		}
		kept = append(kept, line)
	}

	out := strings.Join(kept, "\n")
	out = excessNewlines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// stripHTML renders an HTML body as plain text and collapses the
// leftover whitespace.
func stripHTML(h string) string {
	text := html2text.HTML2Text(h)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// FormatBytes renders a byte count using binary-prefixed units with
// at most two decimal places and trailing zeros trimmed.
func FormatBytes(n int64) string {
	if n == 0 {
		return "0 Bytes"
	}

	units := []string{"Bytes", "KB", "MB", "GB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}

	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + units[i]
}
