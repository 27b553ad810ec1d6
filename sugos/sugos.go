package sugos

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/sugos/render"
	"github.com/hazyhaar/sugos/sugos/internal/crm"
	"github.com/hazyhaar/sugos/sugos/internal/fetch"
	"github.com/hazyhaar/sugos/sugos/internal/ident"
	"github.com/hazyhaar/sugos/sugos/internal/runlog"
)

// Service runs exports against the configured tenants.
type Service struct {
	config  *Config
	logger  *slog.Logger
	conv    render.Converter
	closers []func() error
	history *runlog.Store
	metrics *Metrics
	reg     prometheus.Registerer
	newID   func() string
	now     func() time.Time

	transport    http.RoundTripper
	urlValidator func(string) error
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithConverter replaces the renderers selected by Config.Render.
func WithConverter(c render.Converter) ServiceOption {
	return func(s *Service) { s.conv = c }
}

// WithRegisterer registers the metrics on reg instead of a private registry.
func WithRegisterer(reg prometheus.Registerer) ServiceOption {
	return func(s *Service) { s.reg = reg }
}

// WithIDGenerator overrides run id generation (default: UUIDv7).
func WithIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) { s.newID = fn }
}

// WithClock overrides the clock used for run timestamps and archive names.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) { s.now = fn }
}

// WithTransport sets the HTTP transport used for every remote call.
func WithTransport(rt http.RoundTripper) ServiceOption {
	return func(s *Service) { s.transport = rt }
}

// WithURLValidator overrides the URL check applied before each remote call.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(s *Service) { s.urlValidator = fn }
}

// New creates a Service. cfg may be nil for a service without tenants.
func New(cfg *Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sugos: %w", err)
	}

	s := &Service{
		config: cfg,
		logger: slog.Default(),
		newID:  func() string { return uuid.Must(uuid.NewV7()).String() },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = NewMetrics(s.reg)

	if s.conv == nil {
		r, err := render.New(cfg.renderConfig(s.logger))
		if err != nil {
			return nil, fmt.Errorf("sugos: renderer: %w", err)
		}
		s.conv = r
		s.closers = append(s.closers, r.Close)
	}

	if cfg.HistoryDB != "" {
		h, err := runlog.Open(cfg.HistoryDB, runlog.WithMkdirAll())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("sugos: history: %w", err)
		}
		s.history = h
		s.closers = append(s.closers, h.Close)
	}
	return s, nil
}

// Close releases the renderer and the history database.
func (s *Service) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

// Config returns the effective configuration.
func (s *Service) Config() *Config { return s.config }

// Metrics returns the service collectors.
func (s *Service) Metrics() *Metrics { return s.metrics }

// TenantInfo is the public view of a tenant.
type TenantInfo struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
}

// Tenants lists the configured tenants, sorted by key.
func (s *Service) Tenants() []TenantInfo {
	out := make([]TenantInfo, 0, len(s.config.Tenants))
	for _, k := range s.config.TenantKeys() {
		out = append(out, TenantInfo{Key: k, DisplayName: s.config.Tenants[k].DisplayName})
	}
	return out
}

// session is an authenticated connection to one tenant.
type session struct {
	client *crm.Client
	fetch  *fetch.Fetcher
	token  string
}

func (s *Service) fetcher() *fetch.Fetcher {
	return fetch.New(fetch.Config{
		MaxBytes:     s.config.Limits.MaxDownloadBytes,
		URLValidator: s.urlValidator,
		Transport:    s.transport,
	})
}

func (s *Service) credentials(req Request) (string, string, error) {
	user, pass := req.Username, req.Password
	if user == "" && pass == "" {
		user, pass = s.config.Credentials.Username, s.config.Credentials.Password
	}
	if user == "" || pass == "" {
		return "", "", ErrNoCredentials
	}
	return user, pass, nil
}

// open resolves the tenant and builds its client. No network call is made.
func (s *Service) open(tenantKey string, log *slog.Logger) (*session, error) {
	t, err := s.config.Tenant(tenantKey)
	if err != nil {
		return nil, err
	}
	f := s.fetcher()
	c, err := crm.New(crm.Config{
		APIBaseURL:      t.APIBaseURL,
		DownloadBaseURL: t.DownloadBaseURL,
		TenantCode:      t.AppCFN,
		AuthTimeout:     s.config.Timeouts.Auth.D(),
		LookupTimeout:   s.config.Timeouts.Lookup.D(),
		Logger:          log,
	}, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTenantConfig, err)
	}
	return &session{client: c, fetch: f}, nil
}

func (s *Service) login(ctx context.Context, sess *session, req Request, log *slog.Logger) error {
	user, pass, err := s.credentials(req)
	if err != nil {
		return err
	}
	token, err := sess.client.Authenticate(ctx, user, pass)
	if err != nil {
		s.metrics.run("auth_failed", 0)
		return err
	}
	sess.token = token
	log.Info("sugos: authenticated", "tenant", req.Tenant)
	return nil
}

// Run executes one export. Tenant, credential and authentication problems
// are returned as errors; everything after a successful login is reported
// in the RunResult.
func (s *Service) Run(ctx context.Context, req Request) (*RunResult, error) {
	started := s.now()
	res := &RunResult{RunID: s.newID(), Tenant: req.Tenant, StartedAt: started, Links: LinkIndex{}}
	log := s.logger.With("run_id", res.RunID, "tenant", req.Tenant)

	sess, err := s.open(req.Tenant, log)
	if err != nil {
		return nil, err
	}

	ids, dups, err := ident.Normalize(req.Identifiers)
	if err != nil {
		log.Warn("sugos: no identifiers in request")
		res.Status = StatusNoIdentifiers
		s.finish(ctx, res, log)
		return res, nil
	}
	if dups > 0 {
		log.Info("sugos: removed duplicate identifiers", "duplicates", dups)
	}
	res.Identifiers = ids
	log.Info("sugos: run started", "identifiers", ident.Join(ids))

	if err := s.login(ctx, sess, req, log); err != nil {
		return nil, err
	}

	items, links, err := s.collect(ctx, sess, ids, log)
	if err != nil {
		return nil, err
	}
	res.Links = links
	if len(items) == 0 {
		log.Info("sugos: nothing to process")
		res.Status = StatusNoItems
		s.finish(ctx, res, log)
		return res, nil
	}

	if err := s.process(ctx, sess, items, res, log); err != nil {
		return nil, err
	}
	s.finish(ctx, res, log)
	return res, nil
}

// CollectLinks authenticates and runs the collection phase only, returning
// the link index without downloading anything.
func (s *Service) CollectLinks(ctx context.Context, req Request) (LinkIndex, error) {
	log := s.logger.With("tenant", req.Tenant)
	sess, err := s.open(req.Tenant, log)
	if err != nil {
		return nil, err
	}
	ids, _, err := ident.Normalize(req.Identifiers)
	if err != nil {
		return nil, err
	}
	if err := s.login(ctx, sess, req, log); err != nil {
		return nil, err
	}
	_, links, err := s.collect(ctx, sess, ids, log)
	return links, err
}

func (s *Service) finish(ctx context.Context, res *RunResult, log *slog.Logger) {
	res.FinishedAt = s.now()
	elapsed := res.FinishedAt.Sub(res.StartedAt)
	s.metrics.run(string(res.Status), elapsed)

	attrs := []any{
		"status", res.Status,
		"total", res.Total,
		"processed", res.Processed,
		"errors", res.Errors,
		"links", res.Links.Count(),
		"elapsed", elapsed.Round(time.Millisecond),
	}
	if res.HasArchive() {
		attrs = append(attrs, "archive", res.ArchiveName, "size", humanize.Bytes(uint64(res.ArchiveSize)))
	}
	log.Info("sugos: run finished", attrs...)

	if s.history != nil {
		// The run is complete here; a client that went away must not drop the record.
		if err := s.history.Record(context.WithoutCancel(ctx), res); err != nil {
			log.Error("sugos: record run", "error", err)
		}
	}
}

// History lists recent runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]RunResult, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	return s.history.List(ctx, limit)
}

// HistoryRun returns one recorded run with its item outcomes.
func (s *Service) HistoryRun(ctx context.Context, runID string) (*RunResult, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	return s.history.Get(ctx, runID)
}
