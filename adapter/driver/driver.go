// Package driver adapts the official MongoDB driver to the domain
// interfaces, applying an operation timeout to every call.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/config"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

// ErrClosed is returned when pinging a closed client.
var ErrClosed = errors.New("mongodb client is closed")

// Client owns a driver connection pool and the database selected by the
// configuration.
type Client struct {
	client *mongo.Client
	db     *Database
	log    logger.Logger
	mu     sync.RWMutex
	closed bool
}

// Connect validates cfg, connects to the deployment and pings the primary.
// The write concern and read preference of cfg become the defaults of every
// collection handle.
func Connect(ctx context.Context, cfg *config.Config, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	wc, _ := cfg.WriteConcernValue()
	rp, _ := cfg.ReadPref()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetWriteConcern(wc).
		SetReadPreference(rp)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout).SetServerSelectionTimeout(cfg.ConnectTimeout)
	}

	connCtx, cancel := withTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	log.Info("mongodb connection established", "database", cfg.Database)
	return &Client{
		client: client,
		db:     NewDatabase(client.Database(cfg.Database), cfg.OperationTimeout),
		log:    log,
	}, nil
}

// Mongo returns the underlying driver client.
func (c *Client) Mongo() *mongo.Client {
	return c.client
}

// Database returns the configured database.
func (c *Client) Database() *Database {
	return c.db
}

// Ping checks the connection to the primary.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client. Closing twice is a no-op.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to close mongodb connection: %w", err)
	}
	c.log.Info("mongodb connection closed")
	return nil
}

// Database implements [domain.Database] over a driver database.
type Database struct {
	db      *mongo.Database
	timeout time.Duration
}

// NewDatabase wraps db. A positive timeout bounds every call whose context
// has no deadline.
func NewDatabase(db *mongo.Database, timeout time.Duration) *Database {
	return &Database{db: db, timeout: timeout}
}

// Mongo returns the underlying driver database.
func (d *Database) Mongo() *mongo.Database {
	return d.db
}

// Name implements [domain.Database].
func (d *Database) Name() string {
	return d.db.Name()
}

// Collection implements [domain.Database].
func (d *Database) Collection(name string, opts ...*options.CollectionOptions) domain.Collection {
	return &Collection{coll: d.db.Collection(name, opts...), timeout: d.timeout}
}

// CreateCollection implements [domain.Database].
func (d *Database) CreateCollection(ctx context.Context, name string, opts ...*options.CreateCollectionOptions) error {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()
	return d.db.CreateCollection(ctx, name, opts...)
}

// ListCollectionNames implements [domain.Database].
func (d *Database) ListCollectionNames(ctx context.Context, filter any) ([]string, error) {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()
	return d.db.ListCollectionNames(ctx, filter)
}

// RunCommand implements [domain.Database].
func (d *Database) RunCommand(ctx context.Context, cmd any) *mongo.SingleResult {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()
	return d.db.RunCommand(ctx, cmd)
}

// Drop removes the database.
func (d *Database) Drop(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()
	return d.db.Drop(ctx)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

var (
	_ domain.Database   = (*Database)(nil)
	_ domain.Collection = (*Collection)(nil)
)
