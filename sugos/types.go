// Package sugos exports the case-management orders of a set of person
// identifiers into one zip archive.
//
// A run authenticates against the tenant's API, collects every order,
// attachment and link of every identifier (phase 1), then downloads and
// normalizes each item into the archive (phase 2). Per-item failures never
// abort a run; they are reported in the RunResult.
package sugos

import (
	"github.com/hazyhaar/sugos/sugos/internal/archive"
	"github.com/hazyhaar/sugos/sugos/internal/model"
)

// Re-export model types for the public API.
type (
	Order           = model.Order
	Attachment      = model.Attachment
	Link            = model.Link
	Item            = model.Item
	Kind            = model.Kind
	Terminal        = model.Terminal
	Payload         = model.Payload
	Status          = model.Status
	ItemOutcome     = model.ItemOutcome
	LinkRef         = model.LinkRef
	OrderLinks      = model.OrderLinks
	IdentifierLinks = model.IdentifierLinks
	LinkIndex       = model.LinkIndex
	RunResult       = model.RunResult
	Tally           = archive.Tally
)

// Run statuses.
const (
	StatusOK               = model.StatusOK
	StatusPartial          = model.StatusPartial
	StatusNoIdentifiers    = model.StatusNoIdentifiers
	StatusNoItems          = model.StatusNoItems
	StatusNothingSucceeded = model.StatusNothingSucceeded
)

// Item terminals.
const (
	TerminalAttachment    = model.TerminalAttachment
	TerminalPDF           = model.TerminalPDF
	TerminalFrame         = model.TerminalFrame
	TerminalFrameFallback = model.TerminalFrameFallback
	TerminalMain          = model.TerminalMain
	TerminalMainFallback  = model.TerminalMainFallback
	TerminalUnknown       = model.TerminalUnknown
)

// Item kinds.
const (
	KindAttachment = model.KindAttachment
	KindLink       = model.KindLink
)

// Request starts one export run.
type Request struct {
	// Tenant is the configuration key of the remote environment.
	Tenant string `json:"tenant"`
	// Username and Password fall back to the configured credentials when empty.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	// Identifiers is free text: comma-separated person identifiers.
	Identifiers string `json:"identifiers"`
}
