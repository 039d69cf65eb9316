package server

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"apibase/config"
	"apibase/database"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errUnreachable = errors.New("server selection error: no reachable servers")

func testConfig() *config.Config {
	return &config.Config{
		Port:                0,
		MongoDB:             "test",
		MongoConnectTimeout: time.Second,
		DBFailurePolicy:     config.PolicyDegraded,
		JWTSecret:           "secret",
		JWTTTL:              time.Hour,
		CORSOrigins:         []string{"*"},
		BodyLimit:           100 << 10,
		ShutdownTimeout:     time.Second,
	}
}

func failingConnector(logger *zap.SugaredLogger) *database.Connector {
	return database.NewConnector("mongodb://unreachable", "test", logger,
		database.WithDialer(func(ctx context.Context, uri string) (database.Client, error) {
			return nil, errUnreachable
		}))
}

// blockingConnector never finishes connecting until release is closed.
func blockingConnector(release <-chan struct{}) *database.Connector {
	return database.NewConnector("mongodb://slow", "test", zap.NewNop().Sugar(),
		database.WithDialer(func(ctx context.Context, uri string) (database.Client, error) {
			<-release
			return nil, errUnreachable
		}))
}

type stubController struct {
	path   string
	name   string
	routes func(r chi.Router)
}

func (s stubController) Path() string { return s.path }

func (s stubController) Routes(r chi.Router) {
	if s.routes != nil {
		s.routes(r)
		return
	}
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"controller": s.name})
	})
}

func newTestApp(t *testing.T, controllers ...Controller) *App {
	t.Helper()
	app := New(context.Background(), Options{
		Config:      testConfig(),
		Controllers: controllers,
		Connector:   failingConnector(zap.NewNop().Sugar()),
		Logger:      zap.NewNop().Sugar(),
	})
	require.NotNil(t, app.Handler())
	return app
}
