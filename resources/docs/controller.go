package docs

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.yaml
var openapiYAML []byte

// Controller serves the OpenAPI document and Swagger UI for it.
type Controller struct {
	specURL string
}

// NewController takes the public URL of the OpenAPI document, e.g.
// "/api/openapi.yaml".
func NewController(specURL string) *Controller { return &Controller{specURL: specURL} }

func (c *Controller) Path() string { return "" }

func (c *Controller) Routes(r chi.Router) {
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=60")
		_, _ = w.Write(openapiYAML)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(c.specURL)))
}
