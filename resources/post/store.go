package post

import (
	"context"

	"apibase/database"
	"apibase/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists posts. Get returns database.ErrNotFound when absent.
type Store interface {
	Create(ctx context.Context, p *models.Post) error
	List(ctx context.Context, limit int64) ([]models.Post, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.Post, error)
}

type mongoStore struct {
	posts *database.Collection
}

func NewMongoStore(p database.Provider) Store {
	return &mongoStore{posts: database.NewCollection(p, "posts", mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})}
}

func (s *mongoStore) Create(ctx context.Context, p *models.Post) error {
	coll, err := s.posts.Get(ctx)
	if err != nil {
		return err
	}
	res, err := coll.InsertOne(ctx, p)
	if err != nil {
		return database.Translate(err)
	}
	p.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// List returns the newest posts first.
func (s *mongoStore) List(ctx context.Context, limit int64) ([]models.Post, error) {
	coll, err := s.posts.Get(ctx)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	cur, err := coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.Post{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoStore) Get(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	coll, err := s.posts.Get(ctx)
	if err != nil {
		return nil, err
	}
	var p models.Post
	if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, database.Translate(err)
	}
	return &p, nil
}
