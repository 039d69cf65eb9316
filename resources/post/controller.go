package post

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"apibase/auth"
	"apibase/database"
	"apibase/models"
	"apibase/server"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

type createPostReq struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body"  validate:"required"`
}

// Controller serves /posts.
type Controller struct {
	store  Store
	tokens *auth.Tokens
	now    func() time.Time
}

func NewController(store Store, tokens *auth.Tokens) *Controller {
	return &Controller{store: store, tokens: tokens, now: time.Now}
}

func (c *Controller) Path() string { return "/posts" }

func (c *Controller) Routes(r chi.Router) {
	r.Get("/", server.Handle(c.list))
	r.Get("/{id}", server.Handle(c.get))
	r.With(c.tokens.Authenticated).Post("/", server.Handle(c.create))
}

func (c *Controller) create(w http.ResponseWriter, r *http.Request) error {
	uid, ok := auth.UserID(r)
	if !ok {
		return server.Unauthorized("Unauthorised")
	}
	var req createPostReq
	if err := server.Bind(r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		return server.BadRequest("title and body are required")
	}

	now := c.now()
	p := models.Post{
		AuthorID:  uid,
		Title:     strings.TrimSpace(req.Title),
		Body:      req.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := c.store.Create(ctx, &p); err != nil {
		if errors.Is(err, database.ErrNotReady) {
			return err
		}
		return server.BadRequest("Cannot create post").Wrap(err)
	}
	server.WriteJSON(w, http.StatusCreated, map[string]any{"post": p})
	return nil
}

func (c *Controller) list(w http.ResponseWriter, r *http.Request) error {
	limit := int64(defaultLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return server.BadRequest("limit must be a positive integer")
		}
		limit = min(n, maxLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()
	posts, err := c.store.List(ctx, limit)
	if err != nil {
		return err
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"posts": posts})
	return nil
}

func (c *Controller) get(w http.ResponseWriter, r *http.Request) error {
	oid, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		return server.BadRequest("bad id")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	p, err := c.store.Get(ctx, oid)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return server.NotFound("post not found")
		}
		return err
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"post": p})
	return nil
}
