// Package service holds the remittance operations: transaction lifecycle,
// payment initiation and settlement, withdrawals and wallets.
//
// Every operation runs against a Scope, the tenant's database handle plus the
// resolved tenant. Status changes are conditional updates on the status the
// caller read; a write that matches no row returns domain.ErrStaleState.
package service

import (
	"context"
	"errors"
	"time"

	"remittance_system/internal/domain"
	"remittance_system/internal/events"
	"remittance_system/internal/tenant"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Scope binds operations to one tenant's store.
type Scope struct {
	DB     *gorm.DB
	Tenant tenant.Context
}

// NewScope builds a scope
func NewScope(db *gorm.DB, tc tenant.Context) Scope {
	return Scope{DB: db, Tenant: tc}
}

// with returns a copy of the scope running on tx.
func (s Scope) with(tx *gorm.DB) Scope {
	return Scope{DB: tx, Tenant: s.Tenant}
}

// scoped starts a query on model filtered to the scope's tenant.
func (s Scope) scoped(ctx context.Context, model any) *gorm.DB {
	return s.DB.WithContext(ctx).Model(model).Where("tenant_id = ?", s.Tenant.TenantID)
}

func (s Scope) fields() logrus.Fields {
	return logrus.Fields{"tenant": s.Tenant.Code}
}

// Authorize loads actorID in the scope's tenant and checks it holds perm.
// Unknown users and users of other tenants are forbidden, not missing.
func Authorize(ctx context.Context, scope Scope, actorID uint, perm domain.Permission) (*domain.User, error) {
	var user domain.User
	err := scope.scoped(ctx, &domain.User{}).Where("id = ?", actorID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrForbidden
	}
	if err != nil {
		return nil, err
	}
	if !user.Role.Can(perm) {
		return nil, domain.ErrForbidden
	}
	return &user, nil
}

// Page is one page of an admin listing
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// normalizePage clamps page and size the way the admin endpoints accept them
func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}

func newPage[T any](items []T, page, size int, total int64) Page[T] {
	return Page[T]{
		Items:      items,
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}
}

// notifier publishes lifecycle events after commit. Failures are logged only.
type notifier struct {
	pub events.Publisher
	log logrus.FieldLogger
	now func() time.Time
}

func newNotifier(pub events.Publisher, log logrus.FieldLogger) notifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if pub == nil {
		pub = events.NopPublisher{Log: log}
	}
	return notifier{pub: pub, log: log, now: time.Now}
}

func (n notifier) publish(ctx context.Context, scope Scope, eventType string, id uint, reference, status string, actorID *uint) {
	ev := events.Event{
		Type:       eventType,
		TenantCode: scope.Tenant.Code,
		EntityID:   id,
		Reference:  reference,
		Status:     status,
		ActorID:    actorID,
		OccurredAt: n.now().UTC(),
	}
	if err := n.pub.Publish(ctx, ev); err != nil {
		n.log.WithFields(scope.fields()).WithFields(logrus.Fields{
			"event": eventType,
			"id":    id,
			"error": err.Error(),
		}).Warn("Failed to publish event")
	}
}
