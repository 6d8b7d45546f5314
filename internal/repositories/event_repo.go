package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"waterheater-panel/internal/models"
)

const eventsCollection = "events"

// EventRepository journals every frame the display receives.
type EventRepository struct {
	db *mongo.Database
}

func NewEventRepository(ctx context.Context, db *mongo.Database) (*EventRepository, error) {
	_, err := db.Collection(eventsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "received_at", Value: -1}},
			Options: options.Index(),
		},
		{
			Keys:    bson.D{{Key: "event", Value: 1}, {Key: "received_at", Value: -1}},
			Options: options.Index(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create event indexes: %w", err)
	}
	return &EventRepository{db: db}, nil
}

// Record stores f. It satisfies binder.Recorder.
func (r *EventRepository) Record(ctx context.Context, f models.Frame) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	record := models.NewEventRecord(f)
	if record.ReceivedAt.IsZero() {
		record.ReceivedAt = time.Now()
	}
	_, err := r.db.Collection(eventsCollection).InsertOne(ctx, record)
	return err
}

// ListRecent returns up to limit records, newest first.
func (r *EventRepository) ListRecent(ctx context.Context, limit int64) ([]models.EventRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "received_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.db.Collection(eventsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []models.EventRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Count returns the number of journalled frames for event, or all frames when
// event is empty.
func (r *EventRepository) Count(ctx context.Context, event string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.M{}
	if event != "" {
		filter["event"] = event
	}
	return r.db.Collection(eventsCollection).CountDocuments(ctx, filter)
}
