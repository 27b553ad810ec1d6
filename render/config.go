package render

import (
	"log/slog"
	"time"
)

// Mode selects the renderers used by New.
type Mode string

const (
	ModeChrome Mode = "chrome"
	ModeText   Mode = "text"
	ModeChain  Mode = "chain" // chrome, then text
)

// Config configures the renderers.
type Config struct {
	// Mode selects the renderers (default: chain).
	Mode Mode `json:"mode" yaml:"mode"`

	// ChromeBin is the browser binary. Empty = look it up on the system.
	ChromeBin string `json:"chrome_bin" yaml:"chrome_bin"`

	// RemoteURL is the DevTools WebSocket URL of an external browser.
	// When set, no local browser is launched.
	RemoteURL string `json:"remote_url" yaml:"remote_url"`

	// Sanitize strips scripts and active content before rendering (default: true).
	Sanitize *bool `json:"sanitize" yaml:"sanitize"`

	// PageTimeout bounds one Chrome conversion (default: 60s).
	PageTimeout time.Duration `json:"page_timeout" yaml:"page_timeout"`

	// MaxPages caps the pages produced by the text renderer (default: 500).
	MaxPages int `json:"max_pages" yaml:"max_pages"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = ModeChain
	}
	if c.Sanitize == nil {
		on := true
		c.Sanitize = &on
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 60 * time.Second
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 500
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func (c *Config) sanitize() bool {
	return c.Sanitize == nil || *c.Sanitize
}
