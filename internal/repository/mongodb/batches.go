package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

// outcomeFields lists every field ResetBatch must clear.
var outcomeFields = []string{
	"matchId", "matchedIndustry", "estimatedValue", "co2SavedTons", "pm25PreventedKg",
	"aiModel", "decisionSource", "error", "matchedAt", "failedAt",
}

// CreateBatch inserts a new batch.
func (r *MongoDBRepository) CreateBatch(ctx context.Context, b models.WasteBatch) error {
	if _, err := r.batches().InsertOne(ctx, b); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", models.ErrBatchExists, b.ID)
		}
		return fmt.Errorf("failed to insert waste batch: %w", err)
	}
	return nil
}

// GetBatch loads a batch by id.
func (r *MongoDBRepository) GetBatch(ctx context.Context, id string) (models.WasteBatch, error) {
	var b models.WasteBatch
	err := r.batches().FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return b, fmt.Errorf("%w: %s", models.ErrBatchNotFound, id)
	}
	if err != nil {
		return b, fmt.Errorf("failed to load waste batch %s: %w", id, err)
	}
	return b, nil
}

// TransitionBatch moves a pending batch of the given generation to the outcome status.
// The filter is the guard: a batch that already left pending is never overwritten.
func (r *MongoDBRepository) TransitionBatch(ctx context.Context, id string, generation int, outcome models.BatchOutcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}

	filter := bson.M{"_id": id, "status": models.StatusPending, "generation": generation}
	res, err := r.batches().UpdateOne(ctx, filter, bson.M{"$set": outcomeSet(outcome)})
	if err != nil {
		return fmt.Errorf("failed to transition waste batch %s: %w", id, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.batches().CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check waste batch %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrBatchNotFound, id)
	}
	return fmt.Errorf("%w: %s generation %d", models.ErrStatusConflict, id, generation)
}

func outcomeSet(o models.BatchOutcome) bson.M {
	set := bson.M{"status": o.Status}
	if o.Status == models.StatusMatchFailed {
		set["error"] = o.Error
		set["failedAt"] = o.At
		return set
	}
	set["matchId"] = o.MatchID
	set["matchedIndustry"] = o.MatchedIndustry
	set["estimatedValue"] = o.EstimatedValue
	set["co2SavedTons"] = o.CO2SavedTons
	set["pm25PreventedKg"] = o.PM25PreventedKg
	set["aiModel"] = o.AIModel
	set["decisionSource"] = o.DecisionSource
	set["matchedAt"] = o.At
	return set
}

// ResetBatch returns a batch to pending under a new generation and returns the updated document.
func (r *MongoDBRepository) ResetBatch(ctx context.Context, id string, at time.Time) (models.WasteBatch, error) {
	unset := bson.M{}
	for _, f := range outcomeFields {
		unset[f] = ""
	}
	update := bson.M{
		"$set":   bson.M{"status": models.StatusPending, "retriggeredAt": at},
		"$inc":   bson.M{"generation": 1},
		"$unset": unset,
	}

	var b models.WasteBatch
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.batches().FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return b, fmt.Errorf("%w: %s", models.ErrBatchNotFound, id)
	}
	if err != nil {
		return b, fmt.Errorf("failed to reset waste batch %s: %w", id, err)
	}
	return b, nil
}

// ListStalePending returns batches that entered pending before the cutoff, oldest first.
func (r *MongoDBRepository) ListStalePending(ctx context.Context, before time.Time, limit int64) ([]models.WasteBatch, error) {
	filter := bson.M{
		"status": models.StatusPending,
		"$or": bson.A{
			bson.M{"retriggeredAt": bson.M{"$exists": false}, "createdAt": bson.M{"$lt": before}},
			bson.M{"retriggeredAt": bson.M{"$lt": before}},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := r.batches().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale batches: %w", err)
	}
	var out []models.WasteBatch
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode stale batches: %w", err)
	}
	return out, nil
}
