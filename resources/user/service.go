package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"apibase/auth"
	"apibase/database"
	"apibase/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("wrong credentials given")
)

type Service struct {
	store  Store
	tokens *auth.Tokens
	now    func() time.Time
}

func NewService(store Store, tokens *auth.Tokens) *Service {
	return &Service{store: store, tokens: tokens, now: time.Now}
}

// Register creates a user with a bcrypt-hashed password and returns a token.
func (s *Service) Register(ctx context.Context, name, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	u := &models.User{
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("create user: %w", err)
	}
	return s.tokens.Sign(u.ID)
}

// Login verifies credentials and returns a token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.store.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	return s.tokens.Sign(u.ID)
}

// Profile returns the user without its password hash.
func (s *Service) Profile(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	return u, nil
}
