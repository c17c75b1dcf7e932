package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	usageCollection    = "service_usage"
	sessionsCollection = "sessions"
)

type MongoStorage struct {
	client   *mongo.Client
	users    *mongo.Collection
	usage    *mongo.Collection
	sessions *mongo.Collection
	log      *slog.Logger
}

func NewMongoStorage(uri, database string, log *slog.Logger) (*MongoStorage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(database)
	m := &MongoStorage{
		client:   client,
		users:    db.Collection(usersCollection),
		usage:    db.Collection(usageCollection),
		sessions: db.Collection(sessionsCollection),
		log:      log,
	}

	// Unique indexes back the upsert semantics below
	indexes := []struct {
		coll *mongo.Collection
		keys bson.D
	}{
		{m.users, bson.D{{Key: "user_id", Value: 1}}},
		{m.usage, bson.D{{Key: "user_id", Value: 1}, {Key: "service_name", Value: 1}}},
		{m.sessions, bson.D{{Key: "user_id", Value: 1}}},
	}
	for _, idx := range indexes {
		_, err = idx.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    idx.keys,
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			log.Warn("creating index", slog.String("error", err.Error()))
		}
	}

	return m, nil
}

// EnsureUser inserts the user on first contact only. Attributes of an already
// recorded user are left untouched.
func (m *MongoStorage) EnsureUser(user *User) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":    user.UserId,
			"username":   user.Username,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"created_at": time.Now(),
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := m.users.UpdateOne(ctx, bson.M{"user_id": user.UserId}, update, opts)
	if err != nil {
		return fmt.Errorf("ensuring user: %w", err)
	}
	return nil
}

// IncrementUsage relies on a single $inc upsert, so concurrent increments for
// the same key never race.
func (m *MongoStorage) IncrementUsage(userId int64, serviceName string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	filter := bson.M{"user_id": userId, "service_name": serviceName}
	update := bson.M{
		"$inc": bson.M{"count": 1},
		"$set": bson.M{"updated_at": time.Now()},
	}

	opts := options.Update().SetUpsert(true)
	_, err := m.usage.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("incrementing usage: %w", err)
	}
	return nil
}

func (m *MongoStorage) UsageCounts(userId int64) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cursor, err := m.usage.Find(ctx, bson.M{"user_id": userId})
	if err != nil {
		return nil, fmt.Errorf("finding usage: %w", err)
	}
	defer func(cursor *mongo.Cursor, ctx context.Context) {
		err := cursor.Close(ctx)
		if err != nil {
			m.log.Warn("closing cursor", slog.String("error", err.Error()))
		}
	}(cursor, ctx)

	return decodeUsageCounts(ctx, cursor, m.log), nil
}

// decodeUsageCounts drains the cursor into a service to count map. A document
// that fails to decode is skipped but logged, so the rest of the counters
// still come through.
func decodeUsageCounts(ctx context.Context, cursor *mongo.Cursor, log *slog.Logger) map[string]int {
	counts := make(map[string]int)
	for cursor.Next(ctx) {
		var doc UsageCount
		if err := cursor.Decode(&doc); err != nil {
			log.Warn("decoding usage document", slog.String("error", err.Error()))
			continue
		}
		counts[doc.ServiceName] = doc.Count
	}
	return counts
}

func (m *MongoStorage) Selection(userId int64) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var session Session
	err := m.sessions.FindOne(ctx, bson.M{"user_id": userId}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("finding session: %w", err)
	}
	return session.Tag, nil
}

func (m *MongoStorage) SetSelection(userId int64, tag string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"tag":        tag,
			"updated_at": time.Now(),
		},
		"$setOnInsert": bson.M{
			"user_id": userId,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := m.sessions.UpdateOne(ctx, bson.M{"user_id": userId}, update, opts)
	if err != nil {
		return fmt.Errorf("setting selection: %w", err)
	}
	return nil
}

func (m *MongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
