package normalize

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/sugos/render"
	"github.com/hazyhaar/sugos/sugos/internal/fetch"
	"github.com/hazyhaar/sugos/sugos/internal/model"
)

type response struct {
	contentType string
	body        string
	err         error
}

// fakeWeb serves canned responses and records the calls it receives.
type fakeWeb struct {
	mu       sync.Mutex
	pages    map[string]response
	calls    []string
	timeouts []time.Duration
	tokens   []string
}

func (w *fakeWeb) Get(_ context.Context, rawURL, token string, timeout time.Duration) (*fetch.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, rawURL)
	w.timeouts = append(w.timeouts, timeout)
	w.tokens = append(w.tokens, token)
	r, ok := w.pages[rawURL]
	if !ok {
		return nil, &fetch.StatusError{StatusCode: 404, URL: rawURL}
	}
	if r.err != nil {
		return nil, r.err
	}
	return &fetch.Result{Body: []byte(r.body), StatusCode: 200, ContentType: r.contentType}, nil
}

type baseResolver string

func (b baseResolver) ResolveAPI(ref string) (string, error) {
	base, err := url.Parse(string(b))
	if err != nil {
		return "", err
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

// fakeConverter records its inputs and either fails or wraps them.
type fakeConverter struct {
	mu    sync.Mutex
	fail  bool
	input []string
}

func (c *fakeConverter) Convert(_ context.Context, doc []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = append(c.input, string(doc))
	if c.fail {
		return nil, render.ErrConversion
	}
	return append([]byte("%PDF-fake:"), doc...), nil
}

const apiBase = "https://crm.example/"

func newNormalizer(web *fakeWeb, conv render.Converter) *Normalizer {
	return New(Config{DownloadTimeout: 3 * time.Second, LinkTimeout: 2 * time.Second}, web, baseResolver(apiBase), conv)
}

func linkItem(u string) model.Item {
	return model.NewLinkItem("111", model.Link{Name: "doc", URL: u, OrderID: "O1"})
}

func TestNormalize_Attachment(t *testing.T) {
	// WHAT: Attachments are stored as downloaded with their own extension.
	web := &fakeWeb{pages: map[string]response{
		"https://files.example/a/1_Report.DOCX": {contentType: "application/octet-stream", body: "docx-bytes"},
	}}
	conv := &fakeConverter{}
	n := newNormalizer(web, conv)

	p, err := n.Normalize(context.Background(), "tok", model.NewAttachmentItem("111", model.Attachment{
		ID: "1", FileName: "Report.DOCX", DownloadURL: "https://files.example/a/1_Report.DOCX",
	}))
	require.NoError(t, err)
	assert.Equal(t, "docx-bytes", string(p.Bytes))
	assert.Equal(t, ".docx", p.Ext)
	assert.Equal(t, model.TerminalAttachment, p.Terminal)
	assert.False(t, p.Fallback)
	assert.Equal(t, []time.Duration{3 * time.Second}, web.timeouts)
	assert.Equal(t, []string{"tok"}, web.tokens)
	assert.Empty(t, conv.input)
}

func TestNormalize_AttachmentFetchFails(t *testing.T) {
	n := newNormalizer(&fakeWeb{}, &fakeConverter{})
	_, err := n.Normalize(context.Background(), "tok", model.NewAttachmentItem("111", model.Attachment{
		ID: "1", FileName: "x.pdf", DownloadURL: "https://files.example/missing",
	}))
	require.ErrorIs(t, err, ErrFetchFailed)
	var se *fetch.StatusError
	assert.True(t, errors.As(err, &se))
}

func TestNormalize_PDFPassThrough(t *testing.T) {
	// WHAT: application/pdf links are stored byte-for-byte.
	// WHY: Already archival; the converter must never touch them.
	web := &fakeWeb{pages: map[string]response{
		apiBase + "doc": {contentType: "application/pdf; charset=binary", body: "%PDF-1.4 original"},
	}}
	conv := &fakeConverter{}
	p, err := newNormalizer(web, conv).Normalize(context.Background(), "tok", linkItem(apiBase+"doc"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 original", string(p.Bytes))
	assert.Equal(t, ExtPDF, p.Ext)
	assert.Equal(t, model.TerminalPDF, p.Terminal)
	assert.Empty(t, conv.input)
	assert.Equal(t, []time.Duration{2 * time.Second}, web.timeouts)
}

func TestNormalize_MainConverted(t *testing.T) {
	web := &fakeWeb{pages: map[string]response{
		apiBase + "page": {contentType: "text/html; charset=utf-8", body: "<p>hello</p>"},
	}}
	conv := &fakeConverter{}
	p, err := newNormalizer(web, conv).Normalize(context.Background(), "tok", linkItem(apiBase+"page"))
	require.NoError(t, err)
	assert.Equal(t, ExtPDF, p.Ext)
	assert.Equal(t, model.TerminalMain, p.Terminal)
	assert.False(t, p.Fallback)
	assert.Equal(t, []string{"<p>hello</p>"}, conv.input)
}

func TestNormalize_MainFallback(t *testing.T) {
	// WHAT: A failed conversion keeps the original HTML as _main.html.
	// WHY: The document must still reach the archive, flagged as an error.
	body := "<html><body>main page</body></html>"
	web := &fakeWeb{pages: map[string]response{apiBase + "page": {contentType: "text/html", body: body}}}
	p, err := newNormalizer(web, &fakeConverter{fail: true}).Normalize(context.Background(), "tok", linkItem(apiBase+"page"))
	require.NoError(t, err)
	assert.Equal(t, body, string(p.Bytes))
	assert.Equal(t, ExtMainFallback, p.Ext)
	assert.True(t, p.Fallback)
	assert.Equal(t, model.TerminalMainFallback, p.Terminal)
	assert.ErrorIs(t, p.Cause, render.ErrConversion)
}

func TestNormalize_FrameConverted(t *testing.T) {
	// WHAT: The first iframe src is resolved against the API base and converted instead of the wrapper.
	web := &fakeWeb{pages: map[string]response{
		apiBase + "wrapper":         {contentType: "text/html", body: `<iframe></iframe><iframe src="/viewer/doc?id=9"></iframe><iframe src="other"></iframe>`},
		apiBase + "viewer/doc?id=9": {contentType: "text/html", body: "<p>framed</p>"},
	}}
	conv := &fakeConverter{}
	p, err := newNormalizer(web, conv).Normalize(context.Background(), "tok", linkItem(apiBase+"wrapper"))
	require.NoError(t, err)
	assert.Equal(t, model.TerminalFrame, p.Terminal)
	assert.Equal(t, ExtPDF, p.Ext)
	assert.Equal(t, []string{"<p>framed</p>"}, conv.input)
	assert.Equal(t, []string{apiBase + "wrapper", apiBase + "viewer/doc?id=9"}, web.calls)
	assert.Equal(t, []string{"tok", "tok"}, web.tokens)
}

func TestNormalize_FrameFallback(t *testing.T) {
	web := &fakeWeb{pages: map[string]response{
		apiBase + "wrapper": {contentType: "text/html", body: `<iframe src="inner"></iframe>`},
		apiBase + "inner":   {contentType: "text/html", body: "<p>inner</p>"},
	}}
	p, err := newNormalizer(web, &fakeConverter{fail: true}).Normalize(context.Background(), "tok", linkItem(apiBase+"wrapper"))
	require.NoError(t, err)
	assert.Equal(t, "<p>inner</p>", string(p.Bytes))
	assert.Equal(t, ExtFrameFallback, p.Ext)
	assert.True(t, p.Fallback)
	assert.Equal(t, model.TerminalFrameFallback, p.Terminal)
}

func TestNormalize_FrameFetchFails(t *testing.T) {
	// WHAT: A frame that cannot be fetched fails the whole item.
	// WHY: Only one level of redirection is followed and nothing is retried.
	web := &fakeWeb{pages: map[string]response{
		apiBase + "wrapper": {contentType: "text/html", body: `<iframe src="gone"></iframe>`},
	}}
	conv := &fakeConverter{}
	_, err := newNormalizer(web, conv).Normalize(context.Background(), "tok", linkItem(apiBase+"wrapper"))
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Empty(t, conv.input)
}

func TestNormalize_UnknownType(t *testing.T) {
	web := &fakeWeb{pages: map[string]response{apiBase + "blob": {contentType: "image/png", body: "png"}}}
	p, err := newNormalizer(web, &fakeConverter{}).Normalize(context.Background(), "tok", linkItem(apiBase+"blob"))
	require.NoError(t, err)
	assert.Equal(t, ExtUnknown, p.Ext)
	assert.Equal(t, model.TerminalUnknown, p.Terminal)
	assert.Equal(t, "png", string(p.Bytes))

	web.pages[apiBase+"none"] = response{body: "?"}
	p, err = newNormalizer(web, &fakeConverter{}).Normalize(context.Background(), "tok", linkItem(apiBase+"none"))
	require.NoError(t, err)
	assert.Equal(t, ExtUnknown, p.Ext)
}

func TestNormalize_LinkFetchFails(t *testing.T) {
	web := &fakeWeb{pages: map[string]response{apiBase + "x": {err: context.DeadlineExceeded}}}
	_, err := newNormalizer(web, &fakeConverter{}).Normalize(context.Background(), "tok", linkItem(apiBase+"x"))
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNormalize_MalformedItem(t *testing.T) {
	n := newNormalizer(&fakeWeb{}, &fakeConverter{})
	_, err := n.Normalize(context.Background(), "tok", model.Item{Kind: model.KindLink})
	assert.Error(t, err)
	_, err = n.Normalize(context.Background(), "tok", model.Item{Kind: "other"})
	assert.Error(t, err)
}

func TestFindFrame(t *testing.T) {
	cases := []struct {
		doc  string
		src  string
		want bool
	}{
		{`<html><body><IFRAME SRC="a.html"></IFRAME></body></html>`, "a.html", true},
		{`<iframe src=""></iframe><iframe src=" b "></iframe>`, "b", true},
		{`<iframe/>`, "", false},
		{`<p>no frames</p>`, "", false},
		{`<frame src="old.html">`, "", false},
		{``, "", false},
	}
	for _, c := range cases {
		src, ok := FindFrame([]byte(c.doc))
		assert.Equal(t, c.want, ok, c.doc)
		assert.Equal(t, c.src, src, c.doc)
	}
}

func TestAttachmentExt(t *testing.T) {
	cases := map[string]string{
		"report.docx":      ".docx",
		"Scan.PDF":         ".pdf",
		"archive.tar.gz":   ".gz",
		"README":           ".file",
		".bashrc":          ".file",
		"":                 ".file",
		`dir\sub\note.TXT`: ".txt",
	}
	for in, want := range cases {
		assert.Equal(t, want, AttachmentExt(in), in)
	}
}
