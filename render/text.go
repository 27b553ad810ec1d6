package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// A4 portrait layout, in points.
const (
	pageHeight   = 842.0
	marginLeft   = 48.0
	marginTop    = 56.0
	fontSize     = 9.0
	lineHeight   = 12.0
	linesPerPage = 60
	wrapColumn   = 100
)

// Text renders the readable text of an HTML document into a plain,
// paginated PDF. It needs no browser; layout, images and styling are lost.
type Text struct {
	cfg Config
	md  *converter.Converter
}

// NewText creates a Text renderer.
func NewText(cfg Config) *Text {
	cfg.defaults()
	return &Text{
		cfg: cfg,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Convert implements Converter.
func (t *Text) Convert(ctx context.Context, html []byte) ([]byte, error) {
	lines, err := t.Lines(html)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConversion, err)
	}

	doc, err := t.layout(lines)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := api.Create(nil, bytes.NewReader(doc), &out, pdfConf()); err != nil {
		return nil, fmt.Errorf("%w: text: pdf create: %v", ErrConversion, err)
	}
	return out.Bytes(), nil
}

// Lines returns the wrapped text lines the document renders to.
// A document without readable text is a conversion failure.
func (t *Text) Lines(html []byte) ([]string, error) {
	md, err := t.md.ConvertString(string(Sanitize(html)))
	if err != nil {
		return nil, fmt.Errorf("%w: text: markdown: %v", ErrConversion, err)
	}
	md = strings.TrimSpace(md)
	if md == "" {
		return nil, fmt.Errorf("%w: text: document has no readable text", ErrConversion)
	}

	var lines []string
	for _, raw := range strings.Split(md, "\n") {
		lines = append(lines, wrap(printable(raw), wrapColumn)...)
	}
	return lines, nil
}

type pdfFont struct {
	Name string  `json:"name"`
	Size float64 `json:"size"`
}

type pdfText struct {
	Value string     `json:"value"`
	Pos   [2]float64 `json:"pos"`
	Font  pdfFont    `json:"font"`
}

type pdfPage struct {
	Content struct {
		Text []pdfText `json:"text"`
	} `json:"content"`
}

type pdfDoc struct {
	Paper string              `json:"paper"`
	Pages map[string]*pdfPage `json:"pages"`
}

// layout builds the pdfcpu page description for lines.
func (t *Text) layout(lines []string) ([]byte, error) {
	doc := pdfDoc{Paper: "A4P", Pages: make(map[string]*pdfPage)}
	font := pdfFont{Name: "Helvetica", Size: fontSize}

	page, row := 1, 0
	for _, line := range lines {
		if row == linesPerPage {
			page++
			row = 0
			if page > t.cfg.MaxPages {
				return nil, fmt.Errorf("%w: text: more than %d pages", ErrConversion, t.cfg.MaxPages)
			}
		}
		key := strconv.Itoa(page)
		p, ok := doc.Pages[key]
		if !ok {
			p = &pdfPage{}
			doc.Pages[key] = p
		}
		if strings.TrimSpace(line) != "" {
			p.Content.Text = append(p.Content.Text, pdfText{
				Value: line,
				Pos:   [2]float64{marginLeft, pageHeight - marginTop - float64(row)*lineHeight},
				Font:  font,
			})
		}
		row++
	}
	return json.Marshal(doc)
}

// printable maps a line onto the Latin-1 range the core PDF fonts can encode.
func printable(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r == '\t':
			sb.WriteString("    ")
		case unicode.IsControl(r):
		case r > 0xFF:
			sb.WriteByte('?')
		default:
			sb.WriteRune(r)
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// wrap splits s into lines of at most width runes, breaking on spaces when possible.
func wrap(s string, width int) []string {
	r := []rune(s)
	if len(r) <= width {
		return []string{s}
	}
	var out []string
	for len(r) > width {
		cut := width
		for i := width; i > width/2; i-- {
			if r[i] == ' ' {
				cut = i
				break
			}
		}
		out = append(out, strings.TrimRight(string(r[:cut]), " "))
		r = []rune(strings.TrimLeft(string(r[cut:]), " "))
	}
	if len(r) > 0 {
		out = append(out, string(r))
	}
	return out
}
