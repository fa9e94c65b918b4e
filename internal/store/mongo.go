package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"moviecatalog/internal/models"
)

// Mongo is the UserStore backed by the catalog's users collection.
type Mongo struct {
	col     *mongo.Collection
	timeout time.Duration
}

// NewMongo wraps col. Every call is bounded by timeout.
func NewMongo(col *mongo.Collection, timeout time.Duration) *Mongo {
	return &Mongo{col: col, timeout: timeout}
}

func (s *Mongo) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var user models.User
	if err := s.col.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error retrieving user: %w", err)
	}
	return &user, nil
}

func (s *Mongo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"Username": username})
}

func (s *Mongo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"Email": email})
}

func (s *Mongo) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// Create inserts user. The unique indexes on Username and Email turn a
// concurrent duplicate registration into ErrDuplicate.
func (s *Mongo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc := user.Clone()
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	if doc.FavouriteMovies == nil {
		doc.FavouriteMovies = []primitive.ObjectID{}
	}
	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("error inserting user: %w", err)
	}
	return doc, nil
}

func (s *Mongo) UpdateFields(ctx context.Context, username string, upd Update) (*models.User, error) {
	if upd.Empty() {
		return s.FindByUsername(ctx, username)
	}
	set := bson.M{}
	if upd.Email != nil {
		set["Email"] = *upd.Email
	}
	if upd.Password != nil {
		set["Password"] = *upd.Password
	}
	if upd.Birthday != nil {
		set["Birthday"] = *upd.Birthday
	}
	return s.findOneAndUpdate(ctx, bson.M{"Username": username}, bson.M{"$set": set})
}

// SetResetToken overwrites the embedded token in one $set, so clearing the
// old token and storing the new one can't be observed separately.
func (s *Mongo) SetResetToken(ctx context.Context, userID primitive.ObjectID, token models.ResetToken) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"ResetToken": token}})
	if err != nil {
		return fmt.Errorf("failed to update reset token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Mongo) ClearResetToken(ctx context.Context, userID primitive.ObjectID, tokenHash string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	filter := bson.M{"_id": userID, "ResetToken.token": tokenHash}
	res, err := s.col.UpdateOne(ctx, filter, bson.M{"$unset": bson.M{"ResetToken": ""}})
	if err != nil {
		return false, fmt.Errorf("failed to clear reset token: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (s *Mongo) ReplacePassword(ctx context.Context, userID primitive.ObjectID, tokenHash, passwordHash string, now time.Time) (*models.User, error) {
	filter := bson.M{
		"_id":                   userID,
		"ResetToken.token":      tokenHash,
		"ResetToken.expiryTime": bson.M{"$gt": now},
	}
	update := bson.M{
		"$set":   bson.M{"Password": passwordHash},
		"$unset": bson.M{"ResetToken": ""},
	}
	return s.findOneAndUpdate(ctx, filter, update)
}

func (s *Mongo) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.col.Database().Client().Ping(ctx, readpref.Primary())
}

func (s *Mongo) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.User
	if err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&user); err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, ErrNotFound
		case mongo.IsDuplicateKeyError(err):
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}
