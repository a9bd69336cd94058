package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type deleteInsertCollection interface {
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// VerificationRepository persists verification records in MongoDB.
type VerificationRepository struct {
	collection deleteInsertCollection
}

// NewVerificationRepository constructs a VerificationRepository.
func NewVerificationRepository(collection deleteInsertCollection) *VerificationRepository {
	return &VerificationRepository{collection: collection}
}

// Replace removes any existing record matching the chat id or the phone number
// and inserts the new one. Last write wins; in-place updates never happen.
func (r *VerificationRepository) Replace(ctx context.Context, record VerificationRecord) (VerificationRecord, error) {
	if r == nil || r.collection == nil {
		return VerificationRecord{}, errors.New("verification repository is not initialized")
	}
	if ctx == nil {
		return VerificationRecord{}, errors.New("context is required")
	}
	if record.ChatID == 0 {
		return VerificationRecord{}, errors.New("chat_id is required")
	}
	if record.PhoneNumber == "" {
		return VerificationRecord{}, errors.New("phone_number is required")
	}

	if record.VerifiedAt.IsZero() {
		record.VerifiedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	filter := bson.M{"$or": []bson.M{
		{"chat_id": record.ChatID},
		{"phone_number": record.PhoneNumber},
	}}

	if _, err := r.collection.DeleteMany(ctx, filter); err != nil {
		return VerificationRecord{}, fmt.Errorf("delete stale verifications: %w", err)
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return VerificationRecord{}, fmt.Errorf("insert verification: %w", err)
	}

	return record, nil
}
