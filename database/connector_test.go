package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClient struct {
	pingErr      error
	disconnected bool
}

func (f *fakeClient) Ping(ctx context.Context, rp *readpref.ReadPref) error { return f.pingErr }

func (f *fakeClient) Database(name string, opts ...*options.DatabaseOptions) *mongo.Database {
	return nil
}

func (f *fakeClient) Disconnect(ctx context.Context) error {
	f.disconnected = true
	return nil
}

func waitDone(t *testing.T, c *Connector) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("connect attempt did not finish")
	}
}

func TestBuildURI(t *testing.T) {
	assert.Equal(t,
		"mongodb+srv://bob:pw@cluster0.example.net/?retryWrites=true&w=majority",
		BuildURI("bob", "pw", "cluster0.example.net"))
}

func TestBuildURI_EmptyParts(t *testing.T) {
	assert.Equal(t, "mongodb+srv://:@/?retryWrites=true&w=majority", BuildURI("", "", ""))
}

func TestConnector_Success(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	client := &fakeClient{}
	var gotURI string
	c := NewConnector("mongodb://db", "app", zap.New(core).Sugar(),
		WithDialer(func(ctx context.Context, uri string) (Client, error) {
			gotURI = uri
			return client, nil
		}))
	assert.Equal(t, StateIdle, c.State())

	c.Start(context.Background())
	waitDone(t, c)

	assert.Equal(t, "mongodb://db", gotURI)
	assert.Equal(t, StateConnected, c.State())
	assert.NoError(t, c.Err())
	_, err := c.Database()
	assert.NoError(t, err)
	assert.NoError(t, c.HealthCheck(context.Background()))
	assert.Len(t, logs.FilterMessage("Database connection succeeded.").All(), 1)

	require.NoError(t, c.Close(context.Background()))
	assert.True(t, client.disconnected)
}

func TestConnector_FailureIsLoggedAndKept(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	dialErr := errors.New("no reachable servers")
	calls := 0
	c := NewConnector("mongodb://db", "app", zap.New(core).Sugar(),
		WithDialer(func(ctx context.Context, uri string) (Client, error) {
			calls++
			return nil, dialErr
		}))

	c.Start(context.Background())
	c.Start(context.Background())
	waitDone(t, c)

	assert.Equal(t, 1, calls)
	assert.Equal(t, StateFailed, c.State())
	assert.ErrorIs(t, c.Err(), dialErr)

	_, err := c.Database()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, c.HealthCheck(context.Background()), dialErr)
	assert.NoError(t, c.Close(context.Background()))

	entries := logs.FilterMessageSnippet("Database connection failed.").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "no reachable servers")
}

func TestConnector_NotReadyWhileConnecting(t *testing.T) {
	release := make(chan struct{})
	c := NewConnector("mongodb://db", "app", zap.NewNop().Sugar(),
		WithDialer(func(ctx context.Context, uri string) (Client, error) {
			<-release
			return &fakeClient{}, nil
		}))

	c.Start(context.Background())
	assert.Equal(t, StateConnecting, c.State())
	_, err := c.Database()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, c.HealthCheck(context.Background()), ErrNotReady)

	close(release)
	waitDone(t, c)
	assert.Equal(t, StateConnected, c.State())
}

func TestConnector_CloseDuringConnect(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{}
	c := NewConnector("mongodb://db", "app", zap.NewNop().Sugar(),
		WithDialer(func(ctx context.Context, uri string) (Client, error) {
			<-release
			return client, nil
		}))
	c.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Close(ctx), context.DeadlineExceeded)

	close(release)
	waitDone(t, c)
	assert.True(t, client.disconnected)
	assert.Equal(t, StateFailed, c.State())
	assert.ErrorIs(t, c.Err(), ErrClosed)
	_, err := c.Database()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestConnector_CloseWaitsForPendingConnect(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{}
	c := NewConnector("mongodb://db", "app", zap.NewNop().Sugar(),
		WithDialer(func(ctx context.Context, uri string) (Client, error) {
			<-release
			return client, nil
		}))
	c.Start(context.Background())

	time.AfterFunc(20*time.Millisecond, func() { close(release) })
	require.NoError(t, c.Close(context.Background()))

	select {
	case <-c.Done():
	default:
		t.Fatal("Close returned before the connect finished")
	}
	assert.True(t, client.disconnected)
}

func TestConnector_TimeoutBoundsDial(t *testing.T) {
	c := NewConnector("mongodb://db", "app", zap.NewNop().Sugar(),
		WithTimeout(20*time.Millisecond),
		WithDialer(func(ctx context.Context, uri string) (Client, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))

	c.Start(context.Background())
	waitDone(t, c)
	assert.ErrorIs(t, c.Err(), context.DeadlineExceeded)
}

func TestConnector_MalformedURIFailsWithoutPanic(t *testing.T) {
	c := NewConnector(BuildURI("", "", ""), "app", zap.NewNop().Sugar(), WithTimeout(5*time.Second))

	assert.NotPanics(t, func() { c.Start(context.Background()) })
	waitDone(t, c)
	assert.Equal(t, StateFailed, c.State())
	assert.Error(t, c.Err())
}
