// Package normalize turns one collected item into its archival payload.
//
// Attachments are stored as downloaded. Links are classified by content
// type: PDFs pass through, HTML pages are converted to PDF (following at
// most one embedded frame), anything else is stored raw. A failed
// conversion stores the HTML that was being converted instead.
package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/sugos/render"
	"github.com/hazyhaar/sugos/sugos/internal/fetch"
	"github.com/hazyhaar/sugos/sugos/internal/model"
)

// ErrFetchFailed is returned when an item, or the frame it embeds, cannot be
// downloaded. The item produces no archive entry.
var ErrFetchFailed = errors.New("normalize: fetch failed")

// Extensions and fallback suffixes.
const (
	ExtPDF           = ".pdf"
	ExtUnknown       = ".bin"
	ExtNoExtension   = ".file"
	ExtFrameFallback = "_iframe.html"
	ExtMainFallback  = "_main.html"
)

// Getter downloads a URL with a bearer token.
type Getter interface {
	Get(ctx context.Context, rawURL, token string, timeout time.Duration) (*fetch.Result, error)
}

// Resolver resolves a frame src against the API base.
type Resolver interface {
	ResolveAPI(ref string) (string, error)
}

// Config configures a Normalizer.
type Config struct {
	// DownloadTimeout bounds one attachment download (default: 180s).
	DownloadTimeout time.Duration
	// LinkTimeout bounds one link or frame fetch (default: 120s).
	LinkTimeout time.Duration
	Logger      *slog.Logger
}

func (c *Config) defaults() {
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 180 * time.Second
	}
	if c.LinkTimeout <= 0 {
		c.LinkTimeout = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Normalizer classifies and converts items. It is safe for concurrent use
// when its Getter and Converter are.
type Normalizer struct {
	cfg      Config
	get      Getter
	resolver Resolver
	conv     render.Converter
}

// New creates a Normalizer.
func New(cfg Config, get Getter, resolver Resolver, conv render.Converter) *Normalizer {
	cfg.defaults()
	return &Normalizer{cfg: cfg, get: get, resolver: resolver, conv: conv}
}

// Normalize produces the payload of it. Conversion failures are reported
// through Payload.Fallback, never as an error.
func (n *Normalizer) Normalize(ctx context.Context, token string, it model.Item) (model.Payload, error) {
	switch it.Kind {
	case model.KindAttachment:
		if it.Attachment == nil {
			return model.Payload{}, fmt.Errorf("normalize: attachment item without attachment")
		}
		return n.attachment(ctx, token, it.Attachment)
	case model.KindLink:
		if it.Link == nil {
			return model.Payload{}, fmt.Errorf("normalize: link item without link")
		}
		return n.link(ctx, token, it.Link)
	default:
		return model.Payload{}, fmt.Errorf("normalize: unknown item kind %q", it.Kind)
	}
}

func (n *Normalizer) attachment(ctx context.Context, token string, a *model.Attachment) (model.Payload, error) {
	res, err := n.get.Get(ctx, a.DownloadURL, token, n.cfg.DownloadTimeout)
	if err != nil {
		return model.Payload{}, fmt.Errorf("%w: attachment %s: %w", ErrFetchFailed, a.FileName, err)
	}
	return model.Payload{
		Bytes:    res.Body,
		Ext:      AttachmentExt(a.FileName),
		Terminal: model.TerminalAttachment,
	}, nil
}

func (n *Normalizer) link(ctx context.Context, token string, l *model.Link) (model.Payload, error) {
	log := n.cfg.Logger.With("link", l.Name, "order_id", l.OrderID)

	res, err := n.get.Get(ctx, l.URL, token, n.cfg.LinkTimeout)
	if err != nil {
		return model.Payload{}, fmt.Errorf("%w: link %s: %w", ErrFetchFailed, l.Name, err)
	}

	switch {
	case strings.Contains(res.ContentType, "application/pdf"):
		return model.Payload{Bytes: res.Body, Ext: ExtPDF, Terminal: model.TerminalPDF}, nil

	case strings.Contains(res.ContentType, "text/html"):
		src, ok := FindFrame(res.Body)
		if !ok {
			log.Debug("normalize: no frame, converting page")
			return n.convert(ctx, res.Body, model.TerminalMain, model.TerminalMainFallback, ExtMainFallback), nil
		}
		frameURL, err := n.resolver.ResolveAPI(src)
		if err != nil {
			return model.Payload{}, fmt.Errorf("%w: link %s: frame src %q: %w", ErrFetchFailed, l.Name, src, err)
		}
		log.Debug("normalize: following frame", "frame_url", frameURL)
		frame, err := n.get.Get(ctx, frameURL, token, n.cfg.LinkTimeout)
		if err != nil {
			return model.Payload{}, fmt.Errorf("%w: link %s: frame: %w", ErrFetchFailed, l.Name, err)
		}
		return n.convert(ctx, frame.Body, model.TerminalFrame, model.TerminalFrameFallback, ExtFrameFallback), nil

	default:
		log.Warn("normalize: unknown content type, storing raw", "content_type", res.ContentType)
		return model.Payload{Bytes: res.Body, Ext: ExtUnknown, Terminal: model.TerminalUnknown}, nil
	}
}

func (n *Normalizer) convert(ctx context.Context, doc []byte, ok, failed model.Terminal, fallbackExt string) model.Payload {
	pdf, err := n.conv.Convert(ctx, doc)
	if err == nil && len(pdf) > 0 {
		return model.Payload{Bytes: pdf, Ext: ExtPDF, Terminal: ok}
	}
	if err == nil {
		err = fmt.Errorf("%w: empty output", render.ErrConversion)
	}
	n.cfg.Logger.Warn("normalize: conversion failed, storing html", "terminal", failed, "error", err)
	return model.Payload{Bytes: doc, Ext: fallbackExt, Fallback: true, Terminal: failed, Cause: err}
}

// FindFrame returns the src of the first iframe carrying a non-empty src.
func FindFrame(doc []byte) (string, bool) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "iframe" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "src" && strings.TrimSpace(string(val)) != "" {
					return strings.TrimSpace(string(val)), true
				}
				if !more {
					break
				}
			}
		}
	}
}

// AttachmentExt returns the lowercased extension of name, or ".file" when it
// has none. Leading dots of the base name do not start an extension.
func AttachmentExt(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := path.Ext(strings.TrimLeft(base, "."))
	if ext == "" {
		return ExtNoExtension
	}
	return strings.ToLower(ext)
}
