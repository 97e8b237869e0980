package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harborbank/transaction-engine/internal/errs"
	"github.com/harborbank/transaction-engine/internal/models"
)

// LogRepository is the append-only ledger store, backed by MongoDB. Rows are
// insert-only; no update or delete path exists.
type LogRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *logrus.Logger
}

func NewLogRepository(uri, dbName string, logger *logrus.Logger) (*LogRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	collection := client.Database(dbName).Collection("transaction_logs")

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "transaction_id", Value: 1}}},
		{Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return nil, fmt.Errorf("failed to create ledger indexes: %w", err)
	}

	return &LogRepository{client: client, collection: collection, logger: logger}, nil
}

func (r *LogRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// Insert appends ledger rows. Rows are immutable once written.
func (r *LogRepository) Insert(ctx context.Context, logs []models.TransactionLog) error {
	if len(logs) == 0 {
		return nil
	}
	docs := make([]any, len(logs))
	for i := range logs {
		docs[i] = logs[i]
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to insert ledger rows", err)
	}
	return nil
}

// ListByTransaction returns every ledger row produced by one transaction.
func (r *LogRepository) ListByTransaction(ctx context.Context, transactionID string) ([]models.TransactionLog, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"transaction_id": transactionID})
	if err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to list ledger rows", err)
	}
	defer cursor.Close(ctx)

	var out []models.TransactionLog
	if err := cursor.All(ctx, &out); err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to decode ledger rows", err)
	}
	return out, nil
}

// ListByAccount returns an account's ledger, newest first.
func (r *LogRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int64) ([]models.TransactionLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"account_id": accountID}, opts)
	if err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to list account ledger", err)
	}
	defer cursor.Close(ctx)

	var out []models.TransactionLog
	if err := cursor.All(ctx, &out); err != nil {
		return nil, errs.Wrap(errs.KindInfrastructure, errs.CodeInternal, "failed to decode account ledger", err)
	}
	return out, nil
}
