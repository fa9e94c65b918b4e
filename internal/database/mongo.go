package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const usersCollection = "users"

// ConnectMongoDB establishes a connection to MongoDB and returns the client.
func ConnectMongoDB(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	// Ping the database to verify connection.
	ctxPing, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}
	log.Info().Str("uri", redact(uri)).Msg("Connected to MongoDB")
	return client, nil
}

// GetUserCollection returns the MongoDB collection for users.
func GetUserCollection(client *mongo.Client, dbName string) *mongo.Collection {
	return client.Database(dbName).Collection(usersCollection)
}

// EnsureUserIndexes creates the unique indexes that back username and email
// uniqueness. Registration relies on them rather than on a prior lookup.
func EnsureUserIndexes(ctx context.Context, col *mongo.Collection) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "Username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("username_unique"),
		},
		{
			Keys:    bson.D{{Key: "Email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
	}
	names, err := col.Indexes().CreateMany(ctx, models)
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	log.Debug().Strs("indexes", names).Msg("User indexes ensured")
	return nil
}

// redact strips the password from a connection string before it is logged.
func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
