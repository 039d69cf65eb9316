package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"apibase/config"
	"apibase/database"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Prefix is the shared namespace every controller is mounted under.
const Prefix = "/api"

// DocsPath is where the documentation controller serves Swagger UI; it gets
// a looser content security policy.
const DocsPath = Prefix + "/docs"

type StageKind string

const (
	StageMiddleware StageKind = "middleware"
	StageMount      StageKind = "mount"
	StageError      StageKind = "error"
)

// Stage records one registration on the App, in order.
type Stage struct {
	Kind StageKind
	Name string
	Path string
}

type Options struct {
	Config      *config.Config
	Controllers []Controller
	// Connector defaults to one built from Config.
	Connector *database.Connector
	Logger    *zap.SugaredLogger
	Metrics   *Metrics
}

// App owns the middleware chain and route table. It is built once by New and
// must not be reconfigured afterwards.
type App struct {
	cfg     *config.Config
	port    int
	logger  *zap.SugaredLogger
	metrics *Metrics
	db      *database.Connector

	router  *chi.Mux
	api     *dispatcher
	handler http.Handler
	stages  []Stage
}

// New builds the App: it starts the database connect in the background, then
// registers middleware, mounts controllers and finally the error stage.
func New(ctx context.Context, opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	a := &App{
		cfg:     opts.Config,
		port:    opts.Config.Port,
		logger:  logger,
		metrics: opts.Metrics,
		db:      opts.Connector,
		router:  chi.NewRouter(),
		api:     &dispatcher{},
	}

	a.initDatabaseConnection(ctx)
	a.initMiddleware()
	a.initControllers(opts.Controllers)
	a.initErrorHandling()
	return a
}

func (a *App) initDatabaseConnection(ctx context.Context) {
	if a.db == nil {
		a.db = database.NewConnector(a.cfg.MongoURI(), a.cfg.MongoDB, a.logger,
			database.WithTimeout(a.cfg.MongoConnectTimeout))
	}
	if a.metrics != nil {
		a.metrics.watchDatabase(a.db)
	}
	a.db.Start(ctx)
}

func (a *App) use(name string, mw func(http.Handler) http.Handler) {
	a.router.Use(mw)
	a.stages = append(a.stages, Stage{Kind: StageMiddleware, Name: name})
}

// initMiddleware registers the global chain. Each stage wraps all later ones.
func (a *App) initMiddleware() {
	a.use("security-headers", securityHeaders(DocsPath))
	a.use("cors", corsPolicy(a.cfg.CORSOrigins))
	a.use("request-logger", requestLogger(a.logger, a.metrics))
	a.use("json-body", jsonBodyParser(a.cfg.BodyLimit))
	a.use("urlencoded-body", urlencodedBodyParser(a.cfg.BodyLimit))
	a.use("compression", compression())
}

func (a *App) initControllers(controllers []Controller) {
	for _, c := range controllers {
		a.api.add(controllerRouter(c))
		a.stages = append(a.stages, Stage{
			Kind: StageMount,
			Name: fmt.Sprintf("%T", c),
			Path: Prefix + c.Path(),
		})
	}
	a.router.Mount(Prefix, a.api)
}

func (a *App) initErrorHandling() {
	unrouted := func(w http.ResponseWriter, r *http.Request) {
		Forward(w, r, cannotRoute(r))
	}
	a.router.NotFound(unrouted)
	a.router.MethodNotAllowed(unrouted)
	stage := &errorStage{logger: a.logger}
	a.handler = stage.handler(a.router)
	a.stages = append(a.stages, Stage{Kind: StageError, Name: "error-handler"})
}

// Handler returns the composed handler.
func (a *App) Handler() http.Handler { return a.handler }

// Stages returns the registrations in the order they were made.
func (a *App) Stages() []Stage {
	out := make([]Stage, len(a.stages))
	copy(out, a.stages)
	return out
}

// Database returns the connector started by New.
func (a *App) Database() *database.Connector { return a.db }

// Listen binds the configured port and serves until ctx is cancelled or the
// server fails.
func (a *App) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", a.port, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln. With the fatal database policy a failed connect stops
// the server and is returned; otherwise database state never affects serving.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	port := a.port
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	a.logger.Infof("App running on port %d", port)

	var dbDone <-chan struct{}
	if a.cfg.DBFailurePolicy == config.PolicyFatal {
		dbDone = a.db.Done()
	}

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			return a.shutdown(srv, nil)
		case <-dbDone:
			dbDone = nil
			if err := a.db.Err(); err != nil {
				a.logger.Errorw("stopping server: database connection failed", "error", err)
				return a.shutdown(srv, fmt.Errorf("database connection failed: %w", err))
			}
		}
	}
}

func (a *App) shutdown(srv *http.Server, cause error) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(ctx)
	if cerr := a.db.Close(ctx); cerr != nil {
		a.logger.Warnw("database disconnect failed", "error", cerr)
	}
	if cause != nil {
		return cause
	}
	return err
}
