package sugos

import (
	"errors"

	"github.com/hazyhaar/sugos/render"
	"github.com/hazyhaar/sugos/sugos/internal/crm"
	"github.com/hazyhaar/sugos/sugos/internal/ident"
	"github.com/hazyhaar/sugos/sugos/internal/normalize"
	"github.com/hazyhaar/sugos/sugos/internal/runlog"
)

// ErrUnknownTenant is returned when a request names a tenant that is not configured.
var ErrUnknownTenant = errors.New("sugos: unknown tenant")

// ErrTenantConfig is returned when a tenant configuration is unusable.
var ErrTenantConfig = errors.New("sugos: invalid tenant configuration")

// ErrNoCredentials is returned when neither the request nor the configuration
// carries API credentials.
var ErrNoCredentials = errors.New("sugos: missing API credentials")

// ErrNoHistory is returned by history lookups when no history store is configured.
var ErrNoHistory = errors.New("sugos: run history is disabled")

// Errors raised by the collection and normalization stages.
var (
	ErrNoIdentifiers = ident.ErrNoIdentifiers
	ErrAuthFailed    = crm.ErrAuthFailed
	ErrLookupFailed  = crm.ErrLookupFailed
	ErrDetailFailed  = crm.ErrDetailFailed
	ErrFetchFailed   = normalize.ErrFetchFailed
	ErrConversion    = render.ErrConversion
	ErrRunNotFound   = runlog.ErrNotFound
)
