package tenant

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"remittance_system/internal/domain"
	"remittance_system/internal/utils"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Registry is the read side of the platform tenant registry.
// Lookups return domain.ErrNotFound when no client matches.
type Registry interface {
	FindByID(ctx context.Context, id uint) (*domain.Client, error)
	FindByCode(ctx context.Context, code string) (*domain.Client, error)
	ListActive(ctx context.Context) ([]domain.Client, error)
}

// GormRegistry reads clients from the platform database.
type GormRegistry struct {
	db *gorm.DB
}

// NewGormRegistry builds a registry over the platform database
func NewGormRegistry(db *gorm.DB) *GormRegistry {
	return &GormRegistry{db: db}
}

func (r *GormRegistry) FindByID(ctx context.Context, id uint) (*domain.Client, error) {
	var client domain.Client
	if err := r.db.WithContext(ctx).First(&client, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}

func (r *GormRegistry) FindByCode(ctx context.Context, code string) (*domain.Client, error) {
	var client domain.Client
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&client).Error; err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}

func (r *GormRegistry) ListActive(ctx context.Context) ([]domain.Client, error) {
	var clients []domain.Client
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&clients).Error
	return clients, err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// cachedClient is the Redis form of a client. Connection strings carry
// credentials and never leave the process; they are kept in CachedRegistry.
type cachedClient struct {
	ID     uint   `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

func (c cachedClient) client(dsn string) *domain.Client {
	return &domain.Client{ID: c.ID, Code: c.Code, Name: c.Name, Active: c.Active, ConnectionString: dsn}
}

type localDSN struct {
	dsn     string
	expires time.Time
}

// CachedRegistry fronts a Registry with Redis. Only hits are cached, and only
// for ttl, so a deactivation takes effect within one ttl. Redis failures fall
// through to the wrapped registry. A Redis hit whose DSN this process has not
// loaded within ttl is re-read from the wrapped registry.
type CachedRegistry struct {
	next Registry
	rdb  redis.Cmdable
	ttl  time.Duration
	log  logrus.FieldLogger
	now  func() time.Time

	mu   sync.Mutex
	dsns map[uint]localDSN
}

// NewCachedRegistry wraps next with a Redis cache
func NewCachedRegistry(next Registry, rdb redis.Cmdable, ttl time.Duration, log logrus.FieldLogger) *CachedRegistry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CachedRegistry{next: next, rdb: rdb, ttl: ttl, log: log, now: time.Now, dsns: make(map[uint]localDSN)}
}

func (r *CachedRegistry) FindByID(ctx context.Context, id uint) (*domain.Client, error) {
	key := "tenant:id:" + strconv.FormatUint(uint64(id), 10)
	return r.lookup(ctx, key, func() (*domain.Client, error) { return r.next.FindByID(ctx, id) })
}

func (r *CachedRegistry) FindByCode(ctx context.Context, code string) (*domain.Client, error) {
	return r.lookup(ctx, "tenant:code:"+code, func() (*domain.Client, error) { return r.next.FindByCode(ctx, code) })
}

func (r *CachedRegistry) ListActive(ctx context.Context) ([]domain.Client, error) {
	return r.next.ListActive(ctx)
}

func (r *CachedRegistry) lookup(ctx context.Context, key string, load func() (*domain.Client, error)) (*domain.Client, error) {
	var cached cachedClient
	found, err := utils.GetCache(ctx, r.rdb, key, &cached)
	if err == nil && found {
		if dsn, ok := r.dsn(cached.ID); ok {
			return cached.client(dsn), nil
		}
	}
	if err != nil {
		r.log.WithFields(logrus.Fields{"key": key, "error": err.Error()}).Warn("Tenant cache read failed")
	}

	client, err := load()
	if err != nil {
		return nil, err
	}
	r.remember(client.ID, client.ConnectionString)
	entry := cachedClient{
		ID:     client.ID,
		Code:   client.Code,
		Name:   client.Name,
		Active: client.Active,
	}
	_ = utils.SetCache(ctx, r.rdb, key, entry, r.ttl)
	return client, nil
}

func (r *CachedRegistry) dsn(id uint) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dsns[id]
	if !ok || (r.ttl > 0 && !r.now().Before(d.expires)) {
		return "", false
	}
	return d.dsn, true
}

func (r *CachedRegistry) remember(id uint, dsn string) {
	r.mu.Lock()
	r.dsns[id] = localDSN{dsn: dsn, expires: r.now().Add(r.ttl)}
	r.mu.Unlock()
}
