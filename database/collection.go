package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/mongo"
)

// Provider resolves the live database; *Connector implements it.
type Provider interface {
	Database() (*mongo.Database, error)
}

// Collection resolves a named collection on every use, so callers work
// before, during and after the background connect. Indexes are built the
// first time the collection becomes reachable; callers arriving while the
// build runs are not held up by it, and a failed build is retried on the
// next call.
type Collection struct {
	provider Provider
	name     string
	indexes  []mongo.IndexModel
	build    func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error

	mu       sync.Mutex
	indexed  bool
	building bool
}

func NewCollection(p Provider, name string, indexes ...mongo.IndexModel) *Collection {
	return &Collection{provider: p, name: name, indexes: indexes, build: createIndexes}
}

func createIndexes(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	_, err := coll.Indexes().CreateMany(ctx, models)
	return err
}

func (c *Collection) Get(ctx context.Context) (*mongo.Collection, error) {
	db, err := c.provider.Database()
	if err != nil {
		return nil, err
	}
	coll := db.Collection(c.name)
	if err := c.ensureIndexes(ctx, coll); err != nil {
		return nil, err
	}
	return coll, nil
}

func (c *Collection) ensureIndexes(ctx context.Context, coll *mongo.Collection) error {
	c.mu.Lock()
	if c.indexed || c.building || len(c.indexes) == 0 {
		c.mu.Unlock()
		return nil
	}
	c.building = true
	c.mu.Unlock()

	err := c.build(ctx, coll, c.indexes)

	c.mu.Lock()
	c.building = false
	c.indexed = err == nil
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("create indexes on %s: %w", c.name, err)
	}
	return nil
}

// Translate maps driver errors onto ErrNotFound and ErrDuplicate.
func Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}
