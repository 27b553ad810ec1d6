package crm

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/sugos/sugos/internal/crmtest"
	"github.com/hazyhaar/sugos/sugos/internal/model"
)

func newClient(t *testing.T, srv *crmtest.Server) *Client {
	t.Helper()
	c, err := New(Config{
		APIBaseURL:      srv.BaseURL(),
		DownloadBaseURL: srv.DownloadBaseURL(),
		TenantCode:      crmtest.TenantCode,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNew_RequiresConfig(t *testing.T) {
	// WHAT: Missing api base or tenant code fails fast.
	// WHY: No order call may be issued against an incomplete tenant.
	_, err := New(Config{TenantCode: "X"}, nil)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = New(Config{APIBaseURL: "https://crm.example.com/"}, nil)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = New(Config{APIBaseURL: "ftp://crm.example.com/", TenantCode: "X"}, nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNew_DownloadDefaultsToAPI(t *testing.T) {
	c, err := New(Config{APIBaseURL: "https://crm.example.com/app/", TenantCode: "X"}, nil)
	require.NoError(t, err)
	u, err := c.AttachmentURL("/uploads/2024/", "7", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://crm.example.com/app/uploads/2024/7_a.pdf", u)
}

func TestAuthenticate(t *testing.T) {
	srv := crmtest.New()
	defer srv.Close()
	c := newClient(t, srv)

	tok, err := c.Authenticate(context.Background(), "user", "pass")
	require.NoError(t, err)
	assert.Equal(t, "test-token", tok)

	_, err = c.Authenticate(context.Background(), "user", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)
	assert.Contains(t, err.Error(), "invalid or unauthorized credentials")
}

func TestAuthenticate_TokenLocations(t *testing.T) {
	// WHAT: The token is read from "token", "access_token" or "data.token".
	// WHY: Tenants run different API versions.
	for name, body := range map[string]string{
		"token":        `{"token":"abc"}`,
		"access_token": `{"access_token":"abc"}`,
		"data.token":   `{"data":{"token":"abc"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := newRawServer(t, body)
			c, err := New(Config{APIBaseURL: srv, TenantCode: "X"}, nil)
			require.NoError(t, err)
			tok, err := c.Authenticate(context.Background(), "u", "p")
			require.NoError(t, err)
			assert.Equal(t, "abc", tok)
		})
	}
}

func TestAuthenticate_NoToken(t *testing.T) {
	srv := newRawServer(t, `{"data":"nope"}`)
	c, err := New(Config{APIBaseURL: srv, TenantCode: "X"}, nil)
	require.NoError(t, err)
	_, err = c.Authenticate(context.Background(), "u", "p")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestSearchOrders(t *testing.T) {
	srv := crmtest.New()
	defer srv.Close()
	srv.AddOrder("111", "9001", "VISIT")
	srv.AddRecord("111", map[string]any{"ID": 9002})
	srv.AddRecord("111", map[string]any{"Carrier": "no id"})
	srv.AddRecord("111", map[string]any{"ID": ""})
	srv.AddRecord("111", "not an object")

	c := newClient(t, srv)
	orders, err := c.SearchOrders(context.Background(), "test-token", " 111 ")
	require.NoError(t, err)
	assert.Equal(t, []model.Order{
		{ID: "9001", ServiceType: "VISIT"},
		{ID: "9002"},
	}, orders)
	assert.Equal(t, []string{"111"}, srv.Searches())
}

func TestSearchOrders_EmptyOutcomes(t *testing.T) {
	// WHAT: No records, non-OK status and unknown shapes yield an empty list, no error.
	// WHY: Only transport failures are reported; everything else means "no orders".
	srv := crmtest.New()
	defer srv.Close()
	srv.SetRawSearch("status", `{"status":"ERROR","data":{}}`)
	srv.SetRawSearch("shape", `[1,2,3]`)
	srv.SetRawSearch("records", `{"status":"OK","data":{"existing-orders":{"Records":"x"}}}`)
	srv.SetRawSearch("html", `<html>maintenance</html>`)

	c := newClient(t, srv)
	for _, kw := range []string{"none", "status", "shape", "records", "html"} {
		orders, err := c.SearchOrders(context.Background(), "test-token", kw)
		assert.NoError(t, err, kw)
		assert.Empty(t, orders, kw)
	}
}

func TestSearchOrders_TransportFailure(t *testing.T) {
	srv := crmtest.New()
	defer srv.Close()
	srv.FailSearch("111", http.StatusInternalServerError)

	c := newClient(t, srv)
	_, err := c.SearchOrders(context.Background(), "test-token", "111")
	assert.ErrorIs(t, err, ErrLookupFailed)

	srv.Close()
	_, err = c.SearchOrders(context.Background(), "test-token", "222")
	assert.ErrorIs(t, err, ErrLookupFailed)
}

func TestOrderDetail(t *testing.T) {
	srv := crmtest.New()
	defer srv.Close()
	srv.AddAttachment("9001", "5", "report.docx", "/uploads/2024/", []byte("doc"))
	srv.AddAttachmentEntry("9001", map[string]any{"ID": "6", "FileName": "no-folder.pdf"})
	srv.AddAttachmentEntry("9001", []any{"garbage"})
	srv.AddLink("9001", "Visit report", "/custom/view.php?id=3")
	srv.AddLinkEntry("9001", map[string]any{"Name": "no url"})
	srv.AddLinkEntry("9001", map[string]any{"Name": "", "URL": "x"})

	c := newClient(t, srv)
	d, err := c.OrderDetail(context.Background(), "test-token", "9001")
	require.NoError(t, err)

	require.Len(t, d.Attachments, 1)
	assert.Equal(t, model.Attachment{
		ID:          "5",
		FileName:    "report.docx",
		DownloadURL: srv.URL + "/files/uploads/2024/5_report.docx",
	}, d.Attachments[0])

	require.Len(t, d.Links, 1)
	assert.Equal(t, model.Link{
		Name:    "Visit report",
		URL:     srv.URL + "/custom/view.php?id=3",
		OrderID: "9001",
	}, d.Links[0])
}

func TestOrderDetail_Degrades(t *testing.T) {
	srv := crmtest.New()
	defer srv.Close()
	srv.SetRawDetail("1", `{"status":"OK","data":{"existing-orders":[]}}`)
	srv.SetRawDetail("2", `{"status":"OK"}`)
	srv.FailDetail("3", http.StatusBadGateway)

	c := newClient(t, srv)
	for _, id := range []string{"1", "2"} {
		d, err := c.OrderDetail(context.Background(), "test-token", id)
		assert.NoError(t, err)
		assert.Empty(t, d.Attachments)
		assert.Empty(t, d.Links)
	}
	_, err := c.OrderDetail(context.Background(), "test-token", "3")
	assert.True(t, errors.Is(err, ErrDetailFailed), "got %v", err)
}

func TestAttachmentURL_Escapes(t *testing.T) {
	c, err := New(Config{APIBaseURL: "https://crm.example.com/", TenantCode: "X"}, nil)
	require.NoError(t, err)
	u, err := c.AttachmentURL("docs", "1", "acta final #2.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://crm.example.com/docs/1_acta%20final%20%232.pdf", u)
}

func TestAttachmentURL_KeepsEncodedNames(t *testing.T) {
	// WHAT: A file name stored already percent-encoded is requested as is.
	// WHY: Escaping the "%" again asks the server for a file that does not exist.
	c, err := New(Config{APIBaseURL: "https://crm.example.com/", TenantCode: "X"}, nil)
	require.NoError(t, err)

	cases := map[string]string{
		"a%20b.pdf":   "https://crm.example.com/docs/1_a%20b.pdf",
		"r%C3%A9.pdf": "https://crm.example.com/docs/1_r%C3%A9.pdf",
		"100%.pdf":    "https://crm.example.com/docs/1_100%25.pdf",
		"x y%20z.pdf": "https://crm.example.com/docs/1_x%20y%20z.pdf",
	}
	for name, want := range cases {
		u, err := c.AttachmentURL("docs", "1", name)
		require.NoError(t, err, name)
		assert.Equal(t, want, u, name)
	}
}

func TestLinkURL_StripsLeadingSlash(t *testing.T) {
	// WHAT: Relative link URLs are resolved under the API base path.
	// WHY: A leading slash would otherwise escape the tenant's sub-path.
	c, err := New(Config{APIBaseURL: "https://crm.example.com/tenant/", TenantCode: "X"}, nil)
	require.NoError(t, err)
	u, err := c.LinkURL("//custom/view.php?id=3")
	require.NoError(t, err)
	assert.Equal(t, "https://crm.example.com/tenant/custom/view.php?id=3", u)

	abs, err := c.ResolveAPI("https://docs.example.org/frame.html")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.example.org/frame.html", abs)
}
