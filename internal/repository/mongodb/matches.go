package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

// InsertMatch stores an AIMatch. A second insert for the same generation fails with
// models.ErrDuplicateMatch.
func (r *MongoDBRepository) InsertMatch(ctx context.Context, m models.AIMatch) error {
	if _, err := r.matches().InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", models.ErrDuplicateMatch, m.ID)
		}
		return fmt.Errorf("failed to insert ai match: %w", err)
	}
	return nil
}

// FindMatch loads an AIMatch by id.
func (r *MongoDBRepository) FindMatch(ctx context.Context, id string) (models.AIMatch, error) {
	var m models.AIMatch
	err := r.matches().FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return m, fmt.Errorf("%w: %s", models.ErrMatchNotFound, id)
	}
	if err != nil {
		return m, fmt.Errorf("failed to load ai match %s: %w", id, err)
	}
	return m, nil
}

// CommitMatch records the match and moves the batch to its terminal status. On a replica
// set both writes share a transaction; otherwise the match is written first so a failed
// batch update leaves the decision recoverable by retrigger.
func (r *MongoDBRepository) CommitMatch(ctx context.Context, m models.AIMatch, outcome models.BatchOutcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}

	if !r.transactions {
		if err := r.InsertMatch(ctx, m); err != nil {
			return err
		}
		return r.TransitionBatch(ctx, m.WasteBatchID, m.Generation, outcome)
	}

	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		if err := r.InsertMatch(sc, m); err != nil {
			return nil, err
		}
		return nil, r.TransitionBatch(sc, m.WasteBatchID, m.Generation, outcome)
	})
	if err != nil {
		r.logger.Warn("match commit transaction aborted", zap.String("match_id", m.ID), zap.Error(err))
		return err
	}
	return nil
}

// ListMatchesByRegion returns every AIMatch recorded for region.
func (r *MongoDBRepository) ListMatchesByRegion(ctx context.Context, region string) ([]models.AIMatch, error) {
	cur, err := r.matches().Find(ctx, bson.M{"region": exactFold(region)})
	if err != nil {
		return nil, fmt.Errorf("failed to query matches in %s: %w", region, err)
	}

	var out []models.AIMatch
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode matches: %w", err)
	}
	return out, nil
}
