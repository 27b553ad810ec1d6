// Package render converts HTML documents into PDF.
//
// Two renderers are available:
//   - Chrome: headless Chrome driven through Rod (faithful layout, needs a browser)
//   - Text: pure Go, HTML to markdown text to a paginated PDF via pdfcpu
//
// Chain tries renderers in order and only accepts output that pdfcpu
// validates as a PDF, so a renderer that silently emits garbage is skipped.
//
// Usage:
//
//	conv, err := render.New(render.Config{Mode: render.ModeChain})
//	defer conv.Close()
//	pdf, err := conv.Convert(ctx, htmlBytes)
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrConversion wraps every conversion failure.
var ErrConversion = errors.New("render: conversion failed")

// Converter turns an HTML document into PDF bytes.
type Converter interface {
	Convert(ctx context.Context, html []byte) ([]byte, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, html []byte) ([]byte, error)

// Convert calls f.
func (f ConverterFunc) Convert(ctx context.Context, html []byte) ([]byte, error) {
	return f(ctx, html)
}

// Renderer is a Converter owning resources released by Close.
type Renderer interface {
	Converter
	Close() error
}

// New builds the renderer selected by cfg.Mode.
func New(cfg Config) (Renderer, error) {
	cfg.defaults()
	switch cfg.Mode {
	case ModeChrome:
		return &Chain{steps: []step{{name: "chrome", conv: NewChrome(cfg)}}, logger: cfg.Logger}, nil
	case ModeText:
		return &Chain{steps: []step{{name: "text", conv: NewText(cfg)}}, logger: cfg.Logger}, nil
	case ModeChain:
		return &Chain{steps: []step{
			{name: "chrome", conv: NewChrome(cfg)},
			{name: "text", conv: NewText(cfg)},
		}, logger: cfg.Logger}, nil
	default:
		return nil, fmt.Errorf("render: unknown mode %q", cfg.Mode)
	}
}

type step struct {
	name string
	conv Converter
}

// Chain tries each converter in order and returns the first output that
// validates as PDF.
type Chain struct {
	steps  []step
	logger *slog.Logger
}

// NewChain builds a Chain from named converters, in order.
func NewChain(logger *slog.Logger, named ...NamedConverter) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{logger: logger}
	for _, n := range named {
		c.steps = append(c.steps, step{name: n.Name, conv: n.Converter})
	}
	return c
}

// NamedConverter labels a converter for logs and errors.
type NamedConverter struct {
	Name      string
	Converter Converter
}

// Convert implements Converter.
func (c *Chain) Convert(ctx context.Context, html []byte) ([]byte, error) {
	if len(c.steps) == 0 {
		return nil, fmt.Errorf("%w: no renderer configured", ErrConversion)
	}
	var errs []error
	for _, s := range c.steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConversion, err)
		}
		out, err := s.conv.Convert(ctx, html)
		if err == nil {
			err = ValidatePDF(out)
		}
		if err != nil {
			c.logger.Debug("render: renderer failed", "renderer", s.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrConversion, errors.Join(errs...))
}

// Close releases every converter that holds resources.
func (c *Chain) Close() error {
	var errs []error
	for _, s := range c.steps {
		if r, ok := s.conv.(interface{ Close() error }); ok {
			if err := r.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
