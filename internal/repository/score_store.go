package repository

import (
	"context"
	"errors"
	"fmt"
	"quizclash/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrStoreUnavailable wraps transient store failures (network, timeout).
	ErrStoreUnavailable = errors.New("score store unavailable")
	// ErrStoreRejected wraps writes the store refused (e.g. duplicate key).
	ErrStoreRejected = errors.New("score store rejected write")
)

// ScoreFilter selects records by field equality. Zero-valued fields are
// not matched; Score is a pointer so a conditional update can match on a
// specific prior value.
type ScoreFilter struct {
	Room   string
	Player string
	Score  *int
}

// ScorePatch is a partial update. Nil fields are left untouched.
type ScorePatch struct {
	Score    *int
	Finished *bool
}

// ScoreStore is the engine's only door to durable state. It does no
// business logic; callers own the read-modify-write protocol.
type ScoreStore interface {
	Create(ctx context.Context, rec *model.PlayerScore) error
	Find(ctx context.Context, filter ScoreFilter) ([]model.PlayerScore, error)
	Update(ctx context.Context, filter ScoreFilter, patch ScorePatch) ([]model.PlayerScore, error)
	Delete(ctx context.Context, filter ScoreFilter) error
}

type scoreStore struct {
	collection *mongo.Collection
}

// NewScoreStore creates a score store backed by the "wars" collection.
func NewScoreStore(db *mongo.Database) ScoreStore {
	return &scoreStore{
		collection: db.Collection("wars"),
	}
}

// EnsureIndexes builds the unique (room, player) index. Call once at startup.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("wars").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "room", Value: 1}, {Key: "player", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create wars index: %w", err)
	}
	return nil
}

func (f ScoreFilter) query() bson.M {
	q := bson.M{}
	if f.Room != "" {
		q["room"] = f.Room
	}
	if f.Player != "" {
		q["player"] = f.Player
	}
	if f.Score != nil {
		q["score"] = *f.Score
	}
	return q
}

func (p ScorePatch) update() bson.M {
	set := bson.M{}
	if p.Score != nil {
		set["score"] = *p.Score
	}
	if p.Finished != nil {
		set["finished"] = *p.Finished
	}
	return bson.M{"$set": set}
}

func (s *scoreStore) Create(ctx context.Context, rec *model.PlayerScore) error {
	res, err := s.collection.InsertOne(ctx, rec)
	if err != nil {
		return mapErr(err)
	}
	if oid, ok := res.InsertedID.(interface{ Hex() string }); ok {
		rec.ID = oid.Hex()
	}
	return nil
}

func (s *scoreStore) Find(ctx context.Context, filter ScoreFilter) ([]model.PlayerScore, error) {
	// Join order doubles as leaderboard tie-break order, so reads are
	// always sorted by it.
	opts := options.Find().SetSort(bson.D{{Key: "joinedAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.collection.Find(ctx, filter.query(), opts)
	if err != nil {
		return nil, mapErr(err)
	}
	var records []model.PlayerScore
	if err := cursor.All(ctx, &records); err != nil {
		return nil, mapErr(err)
	}
	return records, nil
}

func (s *scoreStore) Update(ctx context.Context, filter ScoreFilter, patch ScorePatch) ([]model.PlayerScore, error) {
	// (room, player) is unique, so a filter can affect at most one record.
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated model.PlayerScore
	err := s.collection.FindOneAndUpdate(ctx, filter.query(), patch.update(), opts).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return []model.PlayerScore{updated}, nil
}

func (s *scoreStore) Delete(ctx context.Context, filter ScoreFilter) error {
	_, err := s.collection.DeleteMany(ctx, filter.query())
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func mapErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrStoreRejected, err)
	}
	var we mongo.WriteException
	var bwe mongo.BulkWriteException
	if errors.As(err, &we) || errors.As(err, &bwe) {
		return fmt.Errorf("%w: %v", ErrStoreRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
