package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventRecord is a journal entry for one received frame.
type EventRecord struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Namespace  string             `bson:"namespace" json:"namespace"`
	Event      string             `bson:"event" json:"event"`
	Payload    string             `bson:"payload,omitempty" json:"payload,omitempty"`
	ReceivedAt time.Time          `bson:"received_at" json:"received_at"`
}

// NewEventRecord builds the journal entry for f.
func NewEventRecord(f Frame) *EventRecord {
	return &EventRecord{
		Namespace:  f.Namespace,
		Event:      f.Name,
		Payload:    string(f.Data),
		ReceivedAt: f.ReceivedAt,
	}
}
