// Package crm is the client of the remote case-management API: login,
// order search and order detail.
//
// Responses are loosely typed on the remote side, so every payload is decoded
// into raw JSON first and validated field by field. Entries that do not carry
// the required fields are dropped, never propagated half-filled.
package crm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hazyhaar/sugos/sugos/internal/fetch"
	"github.com/hazyhaar/sugos/sugos/internal/model"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrConfig       = errors.New("crm: invalid tenant configuration")
	ErrAuthFailed   = errors.New("crm: authentication failed")
	ErrLookupFailed = errors.New("crm: order lookup failed")
	ErrDetailFailed = errors.New("crm: order detail failed")
)

const (
	apiPath       = "custom/apps/api.php"
	pageID        = "existing-orders-page"
	sectionID     = "existing-orders"
	orderManager  = "ordermanager"
	statusOK      = "OK"
	keyOrders     = "existing-orders"
	keyRecords    = "Records"
	keyAttachment = "Attachments"
	keyLinks      = "Links"
)

// Config describes one tenant of the remote API.
type Config struct {
	APIBaseURL      string
	DownloadBaseURL string // defaults to APIBaseURL
	TenantCode      string // the "cfn" application code

	AuthTimeout   time.Duration // default 30s
	LookupTimeout time.Duration // default 60s

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.DownloadBaseURL == "" {
		c.DownloadBaseURL = c.APIBaseURL
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = 30 * time.Second
	}
	if c.LookupTimeout <= 0 {
		c.LookupTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client talks to one tenant.
type Client struct {
	cfg      Config
	api      *url.URL
	download *url.URL
	fetcher  *fetch.Fetcher
	logger   *slog.Logger
}

// New validates cfg and returns a Client. All three endpoints must be usable
// before any call is issued.
func New(cfg Config, f *fetch.Fetcher) (*Client, error) {
	cfg.defaults()
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("%w: api_base_url is required", ErrConfig)
	}
	if cfg.TenantCode == "" {
		return nil, fmt.Errorf("%w: app_cfn is required", ErrConfig)
	}
	api, err := parseBase(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: api_base_url: %v", ErrConfig, err)
	}
	dl, err := parseBase(cfg.DownloadBaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: download_base_url: %v", ErrConfig, err)
	}
	if f == nil {
		f = fetch.New(fetch.Config{})
	}
	return &Client{
		cfg:      cfg,
		api:      api,
		download: dl,
		fetcher:  f,
		logger:   cfg.Logger,
	}, nil
}

func parseBase(raw string) (*url.URL, error) {
	if err := fetch.ValidateURL(raw); err != nil {
		return nil, err
	}
	return url.Parse(raw)
}

// ResolveAPI resolves ref against the API base URL, as a browser would.
func (c *Client) ResolveAPI(ref string) (string, error) {
	return resolve(c.api, ref)
}

func resolve(base *url.URL, ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(r).String(), nil
}

func (c *Client) loginURL() string {
	u, _ := resolve(c.api, apiPath+"?login")
	return u
}

func (c *Client) orderManagerURL() string {
	u, _ := resolve(c.api, apiPath)
	q := url.Values{}
	q.Set("afn", orderManager)
	q.Set("cfn", c.cfg.TenantCode)
	return u + "?" + q.Encode()
}

// Authenticate exchanges credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	res, err := c.fetcher.Do(ctx, fetch.Request{
		Method:  http.MethodPost,
		URL:     c.loginURL(),
		JSON:    map[string]string{"username": username, "password": password},
		Timeout: c.cfg.AuthTimeout,
	})
	if err != nil {
		var se *fetch.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized {
			return "", fmt.Errorf("%w: invalid or unauthorized credentials", ErrAuthFailed)
		}
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	root := object(res.Body)
	if root == nil {
		return "", fmt.Errorf("%w: login response is not a JSON object", ErrAuthFailed)
	}
	token := str(root["token"])
	if token == "" {
		token = str(root["access_token"])
	}
	if token == "" {
		if data := object(root["data"]); data != nil {
			token = str(data["token"])
		}
	}
	if token == "" {
		return "", fmt.Errorf("%w: no token in login response", ErrAuthFailed)
	}
	return token, nil
}

// query runs one order-manager call and returns the "existing-orders" value
// when the envelope is well formed and its status is OK.
func (c *Client) query(ctx context.Context, token string, params map[string]string) (raw []byte, ok bool, err error) {
	body := map[string]string{
		"page-id":    pageID,
		"section-id": sectionID,
	}
	for k, v := range params {
		body[k] = v
	}
	res, err := c.fetcher.Do(ctx, fetch.Request{
		Method:  http.MethodGet,
		URL:     c.orderManagerURL(),
		Token:   token,
		JSON:    body,
		Timeout: c.cfg.LookupTimeout,
	})
	if err != nil {
		return nil, false, err
	}

	root := object(res.Body)
	if root == nil {
		c.logger.Debug("crm: unrecognized response shape", "params", params)
		return nil, false, nil
	}
	if status := str(root["status"]); status != statusOK {
		c.logger.Debug("crm: response status not OK", "status", status, "params", params)
		return nil, false, nil
	}
	data := object(root["data"])
	if data == nil {
		return nil, false, nil
	}
	orders, found := data[keyOrders]
	if !found {
		return nil, false, nil
	}
	return orders, true, nil
}

// SearchOrders returns the orders matching keyword. A well-formed response
// without records, a non-OK status or an unrecognized shape all yield an
// empty list; only transport failures return ErrLookupFailed.
func (c *Client) SearchOrders(ctx context.Context, token, keyword string) ([]model.Order, error) {
	keyword = strings.TrimSpace(keyword)
	raw, ok, err := c.query(ctx, token, map[string]string{"order-keyword": keyword})
	if err != nil {
		return nil, fmt.Errorf("%w: identifier %q: %v", ErrLookupFailed, keyword, err)
	}
	if !ok {
		return nil, nil
	}
	section := object(raw)
	if section == nil {
		return nil, nil
	}

	var orders []model.Order
	for _, rec := range array(section[keyRecords]) {
		obj := object(rec)
		if obj == nil {
			continue
		}
		id := str(obj["ID"])
		if id == "" {
			continue
		}
		orders = append(orders, model.Order{ID: id, ServiceType: str(obj["Carrier"])})
	}
	return orders, nil
}

// Detail lists the attachments and links of one order.
type Detail struct {
	Attachments []model.Attachment
	Links       []model.Link
}

// OrderDetail returns the attachments and links of orderID. Malformed entries
// are dropped; shape problems yield an empty Detail; transport failures
// return ErrDetailFailed.
func (c *Client) OrderDetail(ctx context.Context, token, orderID string) (Detail, error) {
	raw, ok, err := c.query(ctx, token, map[string]string{"order-id": orderID})
	if err != nil {
		return Detail{}, fmt.Errorf("%w: order %q: %v", ErrDetailFailed, orderID, err)
	}
	if !ok {
		return Detail{}, nil
	}
	section := object(raw)
	if section == nil {
		return Detail{}, nil
	}

	var d Detail
	for _, entry := range array(section[keyAttachment]) {
		obj := object(entry)
		if obj == nil {
			continue
		}
		id, name, folder := str(obj["ID"]), str(obj["FileName"]), str(obj["FolderPath"])
		if id == "" || name == "" || folder == "" {
			continue
		}
		dl, err := c.AttachmentURL(folder, id, name)
		if err != nil {
			c.logger.Debug("crm: attachment url", "order_id", orderID, "file", name, "error", err)
			continue
		}
		d.Attachments = append(d.Attachments, model.Attachment{ID: id, FileName: name, DownloadURL: dl})
	}
	for _, entry := range array(section[keyLinks]) {
		obj := object(entry)
		if obj == nil {
			continue
		}
		name, rel := str(obj["Name"]), str(obj["URL"])
		if name == "" || rel == "" {
			continue
		}
		abs, err := c.LinkURL(rel)
		if err != nil {
			c.logger.Debug("crm: link url", "order_id", orderID, "link", name, "error", err)
			continue
		}
		d.Links = append(d.Links, model.Link{Name: name, URL: abs, OrderID: orderID})
	}
	return d, nil
}

// AttachmentURL builds the archival download URL of an attachment:
// download base joined with "{folder}/{id}_{fileName}", folder slashes trimmed.
// Valid %XX sequences already in the name are kept; other characters are escaped.
func (c *Client) AttachmentURL(folderPath, id, fileName string) (string, error) {
	rel := strings.Trim(folderPath, "/") + "/" + id + "_" + fileName
	u := &url.URL{Path: rel}
	if p, err := url.PathUnescape(rel); err == nil {
		u.Path, u.RawPath = p, rel
	}
	return resolve(c.download, u.String())
}

// LinkURL resolves a response-relative link URL against the API base.
func (c *Client) LinkURL(rel string) (string, error) {
	return resolve(c.api, strings.TrimLeft(rel, "/"))
}
