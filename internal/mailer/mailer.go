// Package mailer dispatches serve-attempt notification emails.
//
// A notification is sent after every successful create or update. The
// dispatcher resolves which evidence to attach (explicit URL, cross-
// referenced record, or legacy inline data), builds the message, and sends
// it through the remote mail function, falling back to the direct messaging
// API if the function invocation fails. A send failure never propagates
// into the record write that triggered it.
package mailer

import (
	"context"
	"strings"
)

// AttachmentFilename is the fixed filename evidence is attached under.
const AttachmentFilename = "serve_evidence.jpg"

// =============================================================================
// Message Types
// =============================================================================

// Attachment is a resolved evidence image ready to attach.
type Attachment struct {
	Filename string
	Content  []byte // raw image bytes; transports encode as needed
}

// Message is a fully assembled notification email.
type Message struct {
	To         []string // Final recipient list, deduplicated
	Subject    string
	HTML       string
	Attachment *Attachment // nil means no evidence to attach
}

// =============================================================================
// Transport Interface
// =============================================================================

// Transport sends an assembled message through one delivery mechanism.
type Transport interface {
	// Name identifies the transport in logs and results.
	Name() string

	// Send delivers the message. A nil return means the transport
	// acknowledged completion.
	Send(ctx context.Context, msg *Message) error
}

// =============================================================================
// Recipients
// =============================================================================

// BuildRecipients returns the explicit recipients plus the business
// oversight address, deduplicated case-insensitively. The first spelling of
// each address wins; empty entries are dropped.
func BuildRecipients(to []string, businessEmail string) []string {
	seen := make(map[string]struct{}, len(to)+1)
	out := make([]string, 0, len(to)+1)

	add := func(addr string) {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}

	for _, addr := range to {
		add(addr)
	}
	add(businessEmail)
	return out
}
