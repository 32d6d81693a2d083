package tenant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remittance_system/internal/config"
	"remittance_system/internal/domain"
)

// Resolver turns a tenant header into a Context. It only reads the registry.
type Resolver struct {
	registry   Registry
	mode       Mode
	defaultDSN string
	timeout    time.Duration

	// override returns a local-development DSN that beats the registry value
	override func(code string) (string, bool)
}

// NewResolver builds a resolver. In single-store mode every tenant routes to defaultDSN.
func NewResolver(registry Registry, mode Mode, defaultDSN string, timeout time.Duration) *Resolver {
	return &Resolver{
		registry:   registry,
		mode:       mode,
		defaultDSN: defaultDSN,
		timeout:    timeout,
		override:   config.TenantDSNOverride,
	}
}

// Mode returns the tenancy mode
func (r *Resolver) Mode() Mode {
	return r.mode
}

// Resolve normalises raw and looks the tenant up, by id when raw is purely
// numeric and by code otherwise.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Context, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" {
		return Context{}, domain.ErrMissingTenant
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var (
		client *domain.Client
		err    error
	)
	if isNumeric(code) {
		id, perr := strconv.ParseUint(code, 10, 32)
		if perr != nil || id == 0 {
			return Context{}, fmt.Errorf("%w: %s", domain.ErrUnknownTenant, code)
		}
		client, err = r.registry.FindByID(ctx, uint(id))
	} else {
		client, err = r.registry.FindByCode(ctx, code)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return Context{}, fmt.Errorf("%w: %s", domain.ErrUnknownTenant, code)
	}
	if err != nil {
		return Context{}, fmt.Errorf("resolve tenant %s: %w", code, err)
	}
	if !client.Active {
		return Context{}, fmt.Errorf("%w: %s", domain.ErrInactiveTenant, client.Code)
	}
	return r.ContextFor(client)
}

// ContextFor builds the routing context of a registry client.
func (r *Resolver) ContextFor(client *domain.Client) (Context, error) {
	code := strings.ToUpper(client.Code)
	tc := Context{Code: code, TenantID: client.ID, Mode: r.mode}

	if r.mode != ModePerTenantStore {
		tc.RoutingKey = SharedRoutingKey
		tc.ConnString = r.defaultDSN
		return tc, nil
	}

	tc.RoutingKey = "tenant_" + strings.ToLower(code)
	if dsn, ok := r.override(code); ok {
		tc.ConnString = dsn
	} else {
		tc.ConnString = strings.TrimSpace(client.ConnectionString)
	}
	if tc.ConnString == "" {
		return Context{}, fmt.Errorf("%w: %s", domain.ErrUnroutableTenant, code)
	}
	return tc, nil
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}
