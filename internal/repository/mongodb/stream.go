package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

// BatchStream yields the ids of batches that were created pending or reset to pending.
type BatchStream struct {
	cs *mongo.ChangeStream
}

// WatchPending opens a change stream on waste_batches. A non-nil resumeToken restarts the
// stream after the last event the caller handled.
func (r *MongoDBRepository) WatchPending(ctx context.Context, resumeToken bson.Raw) (*BatchStream, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"$or": bson.A{
			bson.M{"operationType": "insert", "fullDocument.status": models.StatusPending},
			bson.M{"operationType": "update", "updateDescription.updatedFields.status": models.StatusPending},
		}}}},
	}

	opts := options.ChangeStream()
	if resumeToken != nil {
		opts.SetStartAfter(resumeToken)
	}

	cs, err := r.batches().Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open waste batch change stream: %w", err)
	}
	return &BatchStream{cs: cs}, nil
}

// Next blocks until the next event is available or ctx ends.
func (s *BatchStream) Next(ctx context.Context) bool {
	return s.cs.Next(ctx)
}

// BatchID decodes the current event's document key.
func (s *BatchStream) BatchID() (string, error) {
	var ev struct {
		DocumentKey struct {
			ID string `bson:"_id"`
		} `bson:"documentKey"`
	}
	if err := s.cs.Decode(&ev); err != nil {
		return "", fmt.Errorf("decode change event: %w", err)
	}
	return ev.DocumentKey.ID, nil
}

// ResumeToken returns the token of the last event returned by Next.
func (s *BatchStream) ResumeToken() bson.Raw {
	return s.cs.ResumeToken()
}

func (s *BatchStream) Err() error {
	return s.cs.Err()
}

func (s *BatchStream) Close(ctx context.Context) error {
	return s.cs.Close(ctx)
}
