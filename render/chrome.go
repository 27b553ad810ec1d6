package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrNoBrowser is returned when no browser binary or remote URL is available.
// The Chrome renderer never downloads a browser on its own.
var ErrNoBrowser = errors.New("render: no chrome binary found")

// Chrome renders HTML with headless Chrome. The browser is launched on the
// first conversion and shared by all later ones; a failed page creation
// drops the browser so the next conversion relaunches it.
type Chrome struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewChrome creates a Chrome renderer. Nothing is launched until Convert.
func NewChrome(cfg Config) *Chrome {
	cfg.defaults()
	return &Chrome{cfg: cfg}
}

// Available reports whether a browser can be launched or reached.
func (c *Chrome) Available() bool {
	if c.cfg.RemoteURL != "" || c.cfg.ChromeBin != "" {
		return true
	}
	_, ok := launcher.LookPath()
	return ok
}

// Convert implements Converter.
func (c *Chrome) Convert(ctx context.Context, html []byte) ([]byte, error) {
	b, err := c.ensure()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	if c.cfg.sanitize() {
		html = Sanitize(html)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PageTimeout)
	defer cancel()

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		c.reset()
		return nil, fmt.Errorf("%w: chrome: create page: %v", ErrConversion, err)
	}
	defer page.Close()

	p := page.Context(ctx)
	if err := p.SetDocumentContent(string(html)); err != nil {
		return nil, fmt.Errorf("%w: chrome: set content: %v", ErrConversion, err)
	}
	if err := p.WaitLoad(); err != nil {
		c.cfg.Logger.Debug("render: chrome wait load", "error", err)
	}

	r, err := p.PDF(&proto.PagePrintToPDF{PrintBackground: true})
	if err != nil {
		return nil, fmt.Errorf("%w: chrome: print: %v", ErrConversion, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: chrome: read pdf stream: %v", ErrConversion, err)
	}
	return out, nil
}

func (c *Chrome) ensure() (*rod.Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.New("render: chrome renderer is closed")
	}
	if c.browser != nil {
		return c.browser, nil
	}

	log := c.cfg.Logger
	var wsURL string
	if c.cfg.RemoteURL != "" {
		wsURL = c.cfg.RemoteURL
		log.Info("render: connecting to remote chrome", "url", wsURL)
	} else {
		bin := c.cfg.ChromeBin
		if bin == "" {
			found, ok := launcher.LookPath()
			if !ok {
				return nil, ErrNoBrowser
			}
			bin = found
		}
		l := launcher.New().Bin(bin).Headless(true).Set("disable-gpu")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("render: launch chrome: %w", err)
		}
		wsURL = u
		c.lnch = l
		log.Info("render: launched local chrome", "bin", bin)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		c.cleanupLocked()
		return nil, fmt.Errorf("render: connect chrome: %w", err)
	}
	c.browser = b
	return b, nil
}

func (c *Chrome) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupLocked()
}

// Close shuts the browser down.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cleanupLocked()
	return nil
}

func (c *Chrome) cleanupLocked() {
	if c.browser != nil {
		c.browser.Close()
		c.browser = nil
	}
	if c.lnch != nil {
		c.lnch.Cleanup()
		c.lnch = nil
	}
}
