package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/agrimatch/internal/domain/models"
)

// ListActiveIndustries returns the active industries located in region.
func (r *MongoDBRepository) ListActiveIndustries(ctx context.Context, region string) ([]models.Industry, error) {
	filter := bson.M{"isActive": true, "location.state": exactFold(region)}
	cur, err := r.industries().Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query industries in %s: %w", region, err)
	}

	var out []models.Industry
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode industries: %w", err)
	}
	return out, nil
}

// UpsertIndustry replaces or creates an industry document.
func (r *MongoDBRepository) UpsertIndustry(ctx context.Context, ind models.Industry) error {
	_, err := r.industries().ReplaceOne(ctx, bson.M{"_id": ind.ID}, ind, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert industry %s: %w", ind.ID, err)
	}
	return nil
}
