// Package model holds the data types shared by the collection, normalization
// and packaging stages of an export run.
package model

import "time"

// Kind discriminates the Item union.
type Kind string

const (
	KindAttachment Kind = "attachment"
	KindLink       Kind = "link"
)

// Order is one case/work-order record returned by the order search.
type Order struct {
	ID          string `json:"id"`
	ServiceType string `json:"service_type,omitempty"`
}

// Attachment is a file stored by the remote system against an order.
type Attachment struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	DownloadURL string `json:"download_url"`
}

// Link references an externally hosted document attached to an order.
type Link struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	OrderID string `json:"order_id"`
}

// Item is one unit of Phase 2 work. Exactly one of Attachment or Link is set,
// matching Kind. Owner is assigned when the item is collected and never changes.
type Item struct {
	Kind       Kind        `json:"kind"`
	Owner      string      `json:"owner"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Link       *Link       `json:"link,omitempty"`
}

// NewAttachmentItem builds an attachment item owned by owner.
func NewAttachmentItem(owner string, a Attachment) Item {
	return Item{Kind: KindAttachment, Owner: owner, Attachment: &a}
}

// NewLinkItem builds a link item owned by owner.
func NewLinkItem(owner string, l Link) Item {
	return Item{Kind: KindLink, Owner: owner, Link: &l}
}

// Name returns a human-readable label for logs and outcomes.
func (it Item) Name() string {
	switch it.Kind {
	case KindAttachment:
		if it.Attachment != nil {
			return it.Attachment.FileName
		}
	case KindLink:
		if it.Link != nil {
			return it.Link.Name
		}
	}
	return ""
}

// Terminal names the state in which normalization of an item ended.
type Terminal string

const (
	TerminalAttachment    Terminal = "attachment"
	TerminalPDF           Terminal = "pdf"
	TerminalFrame         Terminal = "frame"
	TerminalFrameFallback Terminal = "frame-fallback"
	TerminalMain          Terminal = "main"
	TerminalMainFallback  Terminal = "main-fallback"
	TerminalUnknown       Terminal = "unknown"
)

// Payload is the archival form of one item.
type Payload struct {
	Bytes []byte
	// Ext is appended to the item's sequence-numbered base name.
	Ext string
	// Fallback is set when conversion failed and the pre-conversion HTML is stored instead.
	Fallback bool
	Terminal Terminal
	// Cause carries the conversion error when Fallback is set.
	Cause error
}

// Status is the overall outcome of a run.
type Status string

const (
	StatusOK               Status = "ok"
	StatusPartial          Status = "partial"
	StatusNoIdentifiers    Status = "no_identifiers"
	StatusNoItems          Status = "no_items"
	StatusNothingSucceeded Status = "nothing_succeeded"
)

// ItemOutcome reports what happened to one item during Phase 2.
type ItemOutcome struct {
	Index    int      `json:"index"`
	Owner    string   `json:"owner"`
	Kind     Kind     `json:"kind"`
	Name     string   `json:"name"`
	Sequence int      `json:"sequence"`
	Path     string   `json:"path,omitempty"`
	Size     int      `json:"size,omitempty"`
	SHA256   string   `json:"sha256,omitempty"`
	Terminal Terminal `json:"terminal,omitempty"`
	Success  bool     `json:"success"`
	Fallback bool     `json:"fallback,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// LinkRef is one link as shown in the link index.
type LinkRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// OrderLinks groups the links of one order.
type OrderLinks struct {
	OrderID string    `json:"order_id"`
	Links   []LinkRef `json:"links"`
}

// IdentifierLinks groups the orders with links of one identifier.
type IdentifierLinks struct {
	Identifier string       `json:"identifier"`
	Orders     []OrderLinks `json:"orders"`
}

// LinkIndex lists every discovered link, grouped by identifier then order, in
// collection order. It is independent of processing success.
type LinkIndex []IdentifierLinks

// Count returns the total number of links in the index.
func (li LinkIndex) Count() int {
	n := 0
	for _, il := range li {
		for _, ol := range il.Orders {
			n += len(ol.Links)
		}
	}
	return n
}

// RunResult is returned to the caller at the end of a run.
type RunResult struct {
	RunID       string        `json:"run_id"`
	Tenant      string        `json:"tenant"`
	Status      Status        `json:"status"`
	Identifiers []string      `json:"identifiers"`
	ArchiveName string        `json:"archive_name,omitempty"`
	Archive     []byte        `json:"-"`
	ArchiveSize int           `json:"archive_size,omitempty"`
	Total       int           `json:"total"`
	Processed   int           `json:"processed"`
	Errors      int           `json:"errors"`
	Items       []ItemOutcome `json:"items,omitempty"`
	Links       LinkIndex     `json:"links"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// HasArchive reports whether the run produced a downloadable archive.
func (r *RunResult) HasArchive() bool {
	return r != nil && len(r.Archive) > 0
}
