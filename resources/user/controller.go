package user

import (
	"context"
	"errors"
	"net/http"
	"time"

	"apibase/auth"
	"apibase/database"
	"apibase/server"

	"github.com/go-chi/chi/v5"
)

type registerReq struct {
	Name     string `json:"name"     validate:"required,max=30"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginReq struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResp struct {
	Token string `json:"token"`
}

// Controller serves /users: registration, login and the current profile.
type Controller struct {
	svc    *Service
	tokens *auth.Tokens
}

func NewController(svc *Service, tokens *auth.Tokens) *Controller {
	return &Controller{svc: svc, tokens: tokens}
}

func (c *Controller) Path() string { return "/users" }

func (c *Controller) Routes(r chi.Router) {
	r.Post("/register", server.Handle(c.register))
	r.Post("/login", server.Handle(c.login))
	r.With(c.tokens.Authenticated).Get("/", server.Handle(c.me))
}

func (c *Controller) register(w http.ResponseWriter, r *http.Request) error {
	var req registerReq
	if err := server.Bind(r, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tok, err := c.svc.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return server.Conflict(err.Error())
		}
		return err
	}
	server.WriteJSON(w, http.StatusCreated, tokenResp{Token: tok})
	return nil
}

func (c *Controller) login(w http.ResponseWriter, r *http.Request) error {
	var req loginReq
	if err := server.Bind(r, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tok, err := c.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return server.Unauthorized(err.Error())
		}
		return err
	}
	server.WriteJSON(w, http.StatusOK, tokenResp{Token: tok})
	return nil
}

func (c *Controller) me(w http.ResponseWriter, r *http.Request) error {
	uid, ok := auth.UserID(r)
	if !ok {
		return server.Unauthorized("Unauthorised")
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, err := c.svc.Profile(ctx, uid)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return server.NotFound("No logged in user")
		}
		return err
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"data": u})
	return nil
}
