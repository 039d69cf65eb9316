package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// ErrNotReady is returned while the background connect has not finished.
var ErrNotReady = errors.New("database connection not ready")

// ErrClosed is the outcome of a connect that finished after Close.
var ErrClosed = errors.New("database connector closed")

// State of the background connect.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateFailed     State = "failed"
)

// Client is the part of *mongo.Client the connector uses.
type Client interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Database(name string, opts ...*options.DatabaseOptions) *mongo.Database
	Disconnect(ctx context.Context) error
}

// Dialer opens and verifies a client for uri.
type Dialer func(ctx context.Context, uri string) (Client, error)

// MongoDialer connects with retryable writes enabled and pings the primary,
// since mongo.Connect alone does not reach the server.
func MongoDialer(ctx context.Context, uri string) (Client, error) {
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	if deadline, ok := ctx.Deadline(); ok {
		opts.SetServerSelectionTimeout(time.Until(deadline))
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// Option configures a Connector.
type Option func(*Connector)

// WithDialer replaces MongoDialer.
func WithDialer(d Dialer) Option {
	return func(c *Connector) { c.dial = d }
}

// WithTimeout bounds connect plus ping.
func WithTimeout(d time.Duration) Option {
	return func(c *Connector) { c.timeout = d }
}

// Connector runs the database connect as a supervised background task and
// exposes its outcome. It never retries; reconnection belongs to the driver.
type Connector struct {
	uri     string
	dbName  string
	timeout time.Duration
	dial    Dialer
	logger  *zap.SugaredLogger

	once sync.Once
	done chan struct{}

	mu     sync.RWMutex
	state  State
	client Client
	err    error
	closed bool
}

func NewConnector(uri, dbName string, logger *zap.SugaredLogger, opts ...Option) *Connector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Connector{
		uri:     uri,
		dbName:  dbName,
		timeout: 30 * time.Second,
		dial:    MongoDialer,
		logger:  logger,
		done:    make(chan struct{}),
		state:   StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the connect and returns immediately. Calls after the first
// are no-ops.
func (c *Connector) Start(ctx context.Context) {
	c.once.Do(func() {
		c.setState(StateConnecting, nil, nil)
		go c.run(ctx)
	})
}

func (c *Connector) run(ctx context.Context) {
	defer close(c.done)

	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client, err := c.dial(dialCtx, c.uri)
	if err != nil {
		c.setState(StateFailed, nil, err)
		c.logger.Errorf("Database connection failed. %v", err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.state, c.err = StateFailed, ErrClosed
		c.mu.Unlock()
		if err := client.Disconnect(context.Background()); err != nil {
			c.logger.Warnw("disconnect after close failed", "error", err)
		}
		return
	}
	c.state, c.client, c.err = StateConnected, client, nil
	c.mu.Unlock()
	c.logger.Info("Database connection succeeded.")
}

func (c *Connector) setState(s State, client Client, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	c.client = client
	c.err = err
}

func (c *Connector) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Err returns the connect failure, if any.
func (c *Connector) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Done is closed once the connect attempt has finished either way.
func (c *Connector) Done() <-chan struct{} { return c.done }

// Database returns the configured database once connected. Before that it
// returns ErrNotReady, after a failure the failure itself.
func (c *Connector) Database() (*mongo.Database, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateConnected:
		return c.client.Database(c.dbName), nil
	case StateFailed:
		return nil, fmt.Errorf("%w: %v", ErrNotReady, c.err)
	default:
		return nil, ErrNotReady
	}
}

// HealthCheck pings the server when connected.
func (c *Connector) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	client, state, err := c.client, c.state, c.err
	c.mu.RUnlock()

	switch state {
	case StateConnected:
		return client.Ping(ctx, readpref.Primary())
	case StateFailed:
		return err
	default:
		return ErrNotReady
	}
}

// Close disconnects the client. A connect still in flight is waited for until
// ctx is done; if it completes later it disconnects on its own.
func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	state := c.state
	c.mu.Unlock()

	if state == StateConnecting {
		select {
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return nil
	}
	return client.Disconnect(ctx)
}
