package upload

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	domain "github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/utils/platformerrors"
)

func sampleRecord() domain.UploadRecord {
	return domain.UploadRecord{
		ID:               "up_01j0000000000000000000000a",
		OwnerID:          "42",
		OwnerDisplayName: "alice",
		Location:         "https://host/x",
		StorageBackend:   "s3",
		StorageKey:       "images/42_up_01j.png",
		DeletionToken:    "",
		LocalID:          "1234",
		ContentType:      "image/png",
		Bytes:            512,
		CreatedAt:        time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC),
	}
}

func TestDocumentMapping(t *testing.T) {
	rec := sampleRecord()
	assert.Equal(t, rec, fromDocument(toDocument(&rec)))
}

func TestDocumentBSONFieldNames(t *testing.T) {
	rec := sampleRecord()
	raw, err := bson.Marshal(toDocument(&rec))
	assert.NoError(t, err)

	var m bson.M
	assert.NoError(t, bson.Unmarshal(raw, &m))
	assert.Equal(t, rec.ID, m["_id"])
	assert.Equal(t, "42", m["owner_id"])
	assert.Equal(t, "1234", m["local_id"])
	assert.NotContains(t, m, "deletion_token")
}

func TestEntityMapping(t *testing.T) {
	rec := sampleRecord()
	entity := toEntity(&rec)
	assert.Equal(t, "42", entity.OwnerID)
	assert.Equal(t, rec, mapEntity(entity))
	assert.Equal(t, "upload_records", entity.TableName())
}

func TestMapEntitiesNeverNil(t *testing.T) {
	assert.NotNil(t, mapEntities(nil))
	assert.NotNil(t, fromDocuments(nil))
}

func TestOwnedRefFilterIsOwnerScoped(t *testing.T) {
	filter := ownedRefFilter("42", "1234")
	assert.Equal(t, bson.E{Key: "owner_id", Value: "42"}, filter[0])

	or, ok := filter[1].Value.(bson.A)
	assert.True(t, ok)
	assert.Equal(t, "$or", filter[1].Key)
	assert.ElementsMatch(t, bson.A{
		bson.D{{Key: "local_id", Value: "1234"}},
		bson.D{{Key: "location", Value: "1234"}},
		bson.D{{Key: "_id", Value: "1234"}},
	}, or)
}

func TestIDsFilter(t *testing.T) {
	assert.Equal(t, bson.D{
		{Key: "_id", Value: bson.D{{Key: "$in", Value: bson.A{"up_a", "up_b"}}}},
	}, idsFilter([]string{"up_a", "up_b"}))
}

type fakeWriter struct {
	docs      []uploadDocument
	findErr   error
	insertErr error
	deleteErr error
}

func (f *fakeWriter) findOwned(ctx context.Context, ownerID string) ([]uploadDocument, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var owned []uploadDocument
	for _, doc := range f.docs {
		if doc.OwnerID == ownerID {
			owned = append(owned, doc)
		}
	}
	return owned, nil
}

func (f *fakeWriter) insert(ctx context.Context, doc uploadDocument) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeWriter) deleteIDs(ctx context.Context, ids []string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.docs = slices.DeleteFunc(f.docs, func(doc uploadDocument) bool {
		return slices.Contains(ids, doc.ID)
	})
	return nil
}

func latestDoc(id, owner string) uploadDocument {
	return uploadDocument{ID: id, OwnerID: owner, Location: "https://host/" + id}
}

func docIDs(docs []uploadDocument) []string {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids
}

func TestReplaceLatest_RemovesOtherRecordsOfOwner(t *testing.T) {
	w := &fakeWriter{docs: []uploadDocument{latestDoc("up_old", "42"), latestDoc("up_other", "7")}}

	displaced, err := replaceLatest(context.Background(), w, latestDoc("up_new", "42"), zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, displaced, 1)
	assert.Equal(t, "up_old", displaced[0].ID)
	assert.ElementsMatch(t, []string{"up_other", "up_new"}, docIDs(w.docs))
}

func TestReplaceLatest_FirstRecord(t *testing.T) {
	w := &fakeWriter{}
	displaced, err := replaceLatest(context.Background(), w, latestDoc("up_new", "42"), zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, displaced)
	assert.Equal(t, []string{"up_new"}, docIDs(w.docs))
}

func TestReplaceLatest_FailsOnlyBeforeWriting(t *testing.T) {
	w := &fakeWriter{docs: []uploadDocument{latestDoc("up_old", "42")}, findErr: errors.New("read timeout")}
	_, err := replaceLatest(context.Background(), w, latestDoc("up_new", "42"), zerolog.Nop())
	require.Error(t, err)
	assert.True(t, platformerrors.IsErrorType(err, platformerrors.ErrorTypeMetadataWrite))
	assert.Equal(t, []string{"up_old"}, docIDs(w.docs))

	w = &fakeWriter{docs: []uploadDocument{latestDoc("up_old", "42")}, insertErr: errors.New("write timeout")}
	_, err = replaceLatest(context.Background(), w, latestDoc("up_new", "42"), zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, []string{"up_old"}, docIDs(w.docs))
}

func TestReplaceLatest_CleanupFailureKeepsNewRecord(t *testing.T) {
	w := &fakeWriter{docs: []uploadDocument{latestDoc("up_old", "42")}, deleteErr: errors.New("connection reset")}

	displaced, err := replaceLatest(context.Background(), w, latestDoc("up_new", "42"), zerolog.Nop())
	// The new record is stored, so the caller must not treat this as a failed write
	// and remove its bytes. The stale record is not displaced and keeps its bytes.
	require.NoError(t, err)
	assert.Empty(t, displaced)
	assert.ElementsMatch(t, []string{"up_old", "up_new"}, docIDs(w.docs))

	// The next replacement clears both older records.
	w.deleteErr = nil
	displaced, err = replaceLatest(context.Background(), w, latestDoc("up_newer", "42"), zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, displaced, 2)
	assert.Equal(t, []string{"up_newer"}, docIDs(w.docs))
}

func TestRecentFirst(t *testing.T) {
	assert.Equal(t, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}, recentFirst())
}
