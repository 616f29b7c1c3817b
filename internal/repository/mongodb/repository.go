package mongodb

import (
	"context"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	batchesCollection    = "waste_batches"
	industriesCollection = "industries"
	matchesCollection    = "ai_matches"
)

// MongoDBRepository persists batches, industries and matches.
type MongoDBRepository struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
	// transactions is true when the deployment is a replica set or sharded cluster.
	transactions bool
}

// NewMongoDBRepository connects, verifies the connection and detects transaction support.
func NewMongoDBRepository(ctx context.Context, uri, dbName string, logger *zap.Logger) (*MongoDBRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	r := &MongoDBRepository{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}

	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		logger.Warn("hello command failed, assuming standalone deployment", zap.Error(err))
	} else {
		r.transactions = hello.SetName != "" || hello.Msg == "isdbgrid"
	}
	logger.Info("connected to mongodb", zap.String("database", dbName), zap.Bool("transactions", r.transactions))

	return r, nil
}

// SupportsChangeStreams reports whether the deployment can serve change streams.
func (r *MongoDBRepository) SupportsChangeStreams() bool {
	return r.transactions
}

// EnsureIndexes creates the secondary indexes the queries rely on.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		batchesCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		industriesCollection: {
			{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "location.state", Value: 1}}},
		},
		matchesCollection: {
			{Keys: bson.D{{Key: "region", Value: 1}}},
			{Keys: bson.D{{Key: "wasteBatchId", Value: 1}, {Key: "generation", Value: 1}}},
		},
	}
	for coll, idx := range specs {
		if _, err := r.db.Collection(coll).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoDBRepository) batches() *mongo.Collection {
	return r.db.Collection(batchesCollection)
}

func (r *MongoDBRepository) industries() *mongo.Collection {
	return r.db.Collection(industriesCollection)
}

func (r *MongoDBRepository) matches() *mongo.Collection {
	return r.db.Collection(matchesCollection)
}

// exactFold matches a string field case-insensitively.
func exactFold(value string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(value) + "$", Options: "i"}
}
