package upload

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	domain "github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/infrastructure/metrics"
	"github.com/janhq/photo-bot/internal/utils/platformerrors"
)

const mongoBackend = "mongo"

// uploadDocument is the stored shape of an upload record.
type uploadDocument struct {
	ID               string    `bson:"_id"`
	OwnerID          string    `bson:"owner_id"`
	OwnerDisplayName string    `bson:"owner_display_name,omitempty"`
	Location         string    `bson:"location"`
	StorageBackend   string    `bson:"storage_backend"`
	StorageKey       string    `bson:"storage_key,omitempty"`
	DeletionToken    string    `bson:"deletion_token,omitempty"`
	LocalID          string    `bson:"local_id,omitempty"`
	ContentType      string    `bson:"content_type"`
	Bytes            int64     `bson:"bytes"`
	CreatedAt        time.Time `bson:"created_at"`
}

// MongoRepository persists upload records in a MongoDB collection.
type MongoRepository struct {
	coll   *mongo.Collection
	latest latestWriter
	log    zerolog.Logger
}

func NewMongoRepository(coll *mongo.Collection, log zerolog.Logger) *MongoRepository {
	return &MongoRepository{
		coll:   coll,
		latest: collectionWriter{coll: coll},
		log:    log.With().Str("component", "mongo-repository").Logger(),
	}
}

func (r *MongoRepository) Insert(ctx context.Context, rec *domain.UploadRecord) error {
	start := time.Now()
	_, err := r.coll.InsertOne(ctx, toDocument(rec))
	metrics.RecordMetadataOperation(mongoBackend, "insert", err, time.Since(start).Seconds())
	if err != nil {
		return repositoryError(ctx, "failed to insert upload record", err, "6a1f3c5e-7b9d-4e2f-8a4c-6e8a0c2e4f61")
	}
	return nil
}

// ReplaceLatest inserts rec and removes every other record of the owner.
// Callers hold the owner lock, so no concurrent writer races the steps.
func (r *MongoRepository) ReplaceLatest(ctx context.Context, rec *domain.UploadRecord) ([]domain.UploadRecord, error) {
	start := time.Now()
	displaced, err := replaceLatest(ctx, r.latest, toDocument(rec), r.log)
	metrics.RecordMetadataOperation(mongoBackend, "replace_latest", err, time.Since(start).Seconds())
	return displaced, err
}

// latestWriter is the set of collection calls ReplaceLatest is built from.
type latestWriter interface {
	findOwned(ctx context.Context, ownerID string) ([]uploadDocument, error)
	insert(ctx context.Context, doc uploadDocument) error
	deleteIDs(ctx context.Context, ids []string) error
}

// replaceLatest returns an error only while nothing has been written. Once the
// new document is in, a failed cleanup leaves the older records in place for the
// next replacement to remove, and reports none of them as displaced.
func replaceLatest(ctx context.Context, w latestWriter, doc uploadDocument, log zerolog.Logger) ([]domain.UploadRecord, error) {
	existing, err := w.findOwned(ctx, doc.OwnerID)
	if err != nil {
		return nil, repositoryError(ctx, "failed to find displaced upload records", err, "8c3b5e7a-9d1f-4a4b-8c6e-8a0c2e4a6b83")
	}

	if err := w.insert(ctx, doc); err != nil {
		return nil, repositoryError(ctx, "failed to insert latest upload record", err, "7b2a4d6f-8c0e-4f3a-9b5d-7f9b1d3f5a72")
	}

	others := make([]uploadDocument, 0, len(existing))
	ids := make([]string, 0, len(existing))
	for _, old := range existing {
		if old.ID == doc.ID {
			continue
		}
		others = append(others, old)
		ids = append(ids, old.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if err := w.deleteIDs(ctx, ids); err != nil {
		log.Warn().Err(err).
			Str("owner_id", doc.OwnerID).
			Str("record_id", doc.ID).
			Int("stale", len(ids)).
			Msg("failed to remove displaced upload records, keeping them until the next upload")
		return nil, nil
	}
	return fromDocuments(others), nil
}

type collectionWriter struct {
	coll *mongo.Collection
}

func (c collectionWriter) findOwned(ctx context.Context, ownerID string) ([]uploadDocument, error) {
	cursor, err := c.coll.Find(ctx, ownerFilter(ownerID))
	if err != nil {
		return nil, err
	}
	var docs []uploadDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (c collectionWriter) insert(ctx context.Context, doc uploadDocument) error {
	_, err := c.coll.InsertOne(ctx, doc)
	return err
}

func (c collectionWriter) deleteIDs(ctx context.Context, ids []string) error {
	_, err := c.coll.DeleteMany(ctx, idsFilter(ids))
	return err
}

func (r *MongoRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.UploadRecord, error) {
	start := time.Now()
	records, err := r.listByOwner(ctx, ownerID)
	metrics.RecordMetadataOperation(mongoBackend, "list", err, time.Since(start).Seconds())
	return records, err
}

func (r *MongoRepository) listByOwner(ctx context.Context, ownerID string) ([]domain.UploadRecord, error) {
	cursor, err := r.coll.Find(ctx, ownerFilter(ownerID), options.Find().SetSort(recentFirst()))
	if err != nil {
		return nil, repositoryError(ctx, "failed to list upload records", err, "1f6e8b0d-2a4c-4d7e-9f1b-1d3f5b7d9e16")
	}
	var docs []uploadDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, repositoryError(ctx, "failed to decode upload records", err, "2a7f9c1e-3b5d-4e8f-8a2c-2e4a6c8e0f27")
	}
	return fromDocuments(docs), nil
}

func (r *MongoRepository) DeleteOwned(ctx context.Context, ownerID, ref string) (*domain.UploadRecord, error) {
	start := time.Now()
	var doc uploadDocument
	err := r.coll.FindOneAndDelete(ctx, ownedRefFilter(ownerID, ref),
		options.FindOneAndDelete().SetSort(recentFirst())).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		metrics.RecordMetadataOperation(mongoBackend, "delete", nil, time.Since(start).Seconds())
		return nil, nil
	}
	metrics.RecordMetadataOperation(mongoBackend, "delete", err, time.Since(start).Seconds())
	if err != nil {
		return nil, repositoryError(ctx, "failed to delete upload record", err, "3b8a0d2f-4c6e-4f9a-9b3d-3f5b7d9f1a38")
	}
	rec := fromDocument(doc)
	return &rec, nil
}

// Ping checks the primary is reachable.
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, nil)
}

func ownerFilter(ownerID string) bson.D {
	return bson.D{{Key: "owner_id", Value: ownerID}}
}

func idsFilter(ids []string) bson.D {
	values := make(bson.A, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	return bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: values}}}}
}

// ownedRefFilter matches ref against local id, location or id, always scoped to the owner.
func ownedRefFilter(ownerID, ref string) bson.D {
	return bson.D{
		{Key: "owner_id", Value: ownerID},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "local_id", Value: ref}},
			bson.D{{Key: "location", Value: ref}},
			bson.D{{Key: "_id", Value: ref}},
		}},
	}
}

func recentFirst() bson.D {
	return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
}

func toDocument(rec *domain.UploadRecord) uploadDocument {
	return uploadDocument{
		ID:               rec.ID,
		OwnerID:          rec.OwnerID,
		OwnerDisplayName: rec.OwnerDisplayName,
		Location:         rec.Location,
		StorageBackend:   rec.StorageBackend,
		StorageKey:       rec.StorageKey,
		DeletionToken:    rec.DeletionToken,
		LocalID:          rec.LocalID,
		ContentType:      rec.ContentType,
		Bytes:            rec.Bytes,
		CreatedAt:        rec.CreatedAt,
	}
}

func fromDocument(doc uploadDocument) domain.UploadRecord {
	return domain.UploadRecord{
		ID:               doc.ID,
		OwnerID:          doc.OwnerID,
		OwnerDisplayName: doc.OwnerDisplayName,
		Location:         doc.Location,
		StorageBackend:   doc.StorageBackend,
		StorageKey:       doc.StorageKey,
		DeletionToken:    doc.DeletionToken,
		LocalID:          doc.LocalID,
		ContentType:      doc.ContentType,
		Bytes:            doc.Bytes,
		CreatedAt:        doc.CreatedAt.UTC(),
	}
}

func fromDocuments(docs []uploadDocument) []domain.UploadRecord {
	records := make([]domain.UploadRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, fromDocument(doc))
	}
	return records
}

func repositoryError(ctx context.Context, message string, err error, uuid string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeMetadataWrite, message, err, uuid)
}
