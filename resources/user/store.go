package user

import (
	"context"

	"apibase/database"
	"apibase/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists users. Lookups return database.ErrNotFound when absent,
// Create returns database.ErrDuplicate for a taken email.
type Store interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

type mongoStore struct {
	users *database.Collection
}

func NewMongoStore(p database.Provider) Store {
	return &mongoStore{users: database.NewCollection(p, "users", mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})}
}

func (s *mongoStore) Create(ctx context.Context, u *models.User) error {
	coll, err := s.users.Get(ctx)
	if err != nil {
		return err
	}
	res, err := coll.InsertOne(ctx, u)
	if err != nil {
		return database.Translate(err)
	}
	u.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *mongoStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *mongoStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *mongoStore) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	coll, err := s.users.Get(ctx)
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := coll.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, database.Translate(err)
	}
	return &u, nil
}
