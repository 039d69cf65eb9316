package metrics

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller exposes a Prometheus registry at /metrics. Compression is left
// to the App chain.
type Controller struct {
	gatherer prometheus.Gatherer
}

func NewController(g prometheus.Gatherer) *Controller { return &Controller{gatherer: g} }

func (c *Controller) Path() string { return "/metrics" }

func (c *Controller) Routes(r chi.Router) {
	r.Handle("/", promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{DisableCompression: true}))
}
