package health

import (
	"context"
	"net/http"
	"time"

	"apibase/database"
	"apibase/server"

	"github.com/go-chi/chi/v5"
)

// Checker reports database readiness; *database.Connector implements it.
type Checker interface {
	State() database.State
	HealthCheck(ctx context.Context) error
}

type status struct {
	Status   string         `json:"status"`
	Database database.State `json:"database"`
	Error    string         `json:"error,omitempty"`
}

// Controller serves /health. It answers 200 only once the database is
// reachable, so it doubles as a readiness probe.
type Controller struct {
	db Checker
}

func NewController(db Checker) *Controller { return &Controller{db: db} }

func (c *Controller) Path() string { return "/health" }

func (c *Controller) Routes(r chi.Router) {
	r.Get("/", c.check)
}

func (c *Controller) check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := status{Status: "ok", Database: c.db.State()}
	if err := c.db.HealthCheck(ctx); err != nil {
		resp.Status = "degraded"
		if resp.Database == database.StateFailed {
			resp.Error = "database connection failed"
		}
		server.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	server.WriteJSON(w, http.StatusOK, resp)
}
