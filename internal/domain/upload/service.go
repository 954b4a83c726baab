package upload

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/janhq/photo-bot/internal/config"
	"github.com/janhq/photo-bot/internal/domain/retry"
	"github.com/janhq/photo-bot/internal/utils/platformerrors"
	"github.com/janhq/photo-bot/internal/utils/recordid"
)

// Storage persists image bytes and returns where they can be fetched.
type Storage interface {
	Name() string
	// ManagesBytes reports whether deleting a record should also delete its bytes.
	ManagesBytes() bool
	Upload(ctx context.Context, key string, data []byte, contentType string) (Stored, error)
	Delete(ctx context.Context, stored Stored) error
}

// Repository defines persistence operations needed by the service.
type Repository interface {
	Insert(ctx context.Context, rec *UploadRecord) error
	// ReplaceLatest stores rec as the owner's only record and returns the records it displaced.
	ReplaceLatest(ctx context.Context, rec *UploadRecord) ([]UploadRecord, error)
	// ListByOwner returns the owner's records, most recent first.
	ListByOwner(ctx context.Context, ownerID string) ([]UploadRecord, error)
	// DeleteOwned removes the owner's record whose local id, location or id equals ref.
	// It returns nil when the owner has no such record.
	DeleteOwned(ctx context.Context, ownerID, ref string) (*UploadRecord, error)
}

// Locker serializes work belonging to one owner.
type Locker interface {
	WithLock(ctx context.Context, ownerID string, fn func(ctx context.Context) error) error
}

// Service coordinates storage uploads and metadata records.
type Service struct {
	repo            Repository
	storage         Storage
	locker          Locker
	lifecycle       Lifecycle
	storageTimeout  time.Duration
	metadataTimeout time.Duration
	executor        *retry.Executor
	log             zerolog.Logger
	tracer          trace.Tracer

	now        func() time.Time
	newID      func() string
	newLocalID func() string
}

func NewService(cfg *config.Config, repo Repository, storage Storage, locker Locker, log zerolog.Logger) *Service {
	lifecycle := LifecycleHistory
	if cfg.IsLatestOnly() {
		lifecycle = LifecycleLatest
	}
	policy := retry.NoRetryPolicy()
	if cfg.StorageMaxRetries > 0 {
		policy = retry.SingleRetry(cfg.StorageRetryDelay)
	}
	return &Service{
		repo:            repo,
		storage:         storage,
		locker:          locker,
		lifecycle:       lifecycle,
		storageTimeout:  cfg.StorageTimeout,
		metadataTimeout: cfg.MetadataTimeout,
		executor:        retry.NewExecutor(policy, isTransient),
		log:             log.With().Str("component", "upload-service").Logger(),
		tracer:          otel.Tracer("photo-bot/upload"),
		now:             time.Now,
		newID:           recordid.New,
		newLocalID:      recordid.NewLocalID,
	}
}

// Lifecycle returns the record lifecycle policy in force.
func (s *Service) Lifecycle() Lifecycle {
	return s.lifecycle
}

// Store uploads data for ownerID and records where it landed.
func (s *Service) Store(ctx context.Context, ownerID, displayName string, data []byte) (*UploadRecord, error) {
	ctx, span := s.tracer.Start(ctx, "upload.Store", trace.WithAttributes(
		attribute.String("owner_id", ownerID),
		attribute.Int("bytes", len(data)),
	))
	defer span.End()

	if strings.TrimSpace(ownerID) == "" {
		return nil, endSpan(span, validationError(ctx, "owner id is required"))
	}
	if len(data) == 0 {
		return nil, endSpan(span, validationError(ctx, "image is empty"))
	}

	var rec *UploadRecord
	err := s.serialize(ctx, ownerID, func(ctx context.Context) error {
		var err error
		rec, err = s.store(ctx, ownerID, displayName, data)
		return err
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	span.SetAttributes(attribute.String("record_id", rec.ID))
	return rec, nil
}

func (s *Service) store(ctx context.Context, ownerID, displayName string, data []byte) (*UploadRecord, error) {
	start := s.now()

	detected := mimetype.Detect(data)
	contentType := detected.String()
	ext := detected.Extension()
	if ext == "" {
		ext = ".bin"
	}

	id := s.newID()
	key := fmt.Sprintf("%s_%s%s", safeKeySegment(ownerID), id, ext)

	stored, err := s.upload(ctx, key, data, contentType)
	if err != nil {
		return nil, err
	}

	rec := &UploadRecord{
		ID:               id,
		OwnerID:          ownerID,
		OwnerDisplayName: strings.TrimSpace(displayName),
		Location:         stored.Location,
		StorageBackend:   s.storage.Name(),
		StorageKey:       stored.Key,
		DeletionToken:    stored.DeletionToken,
		LocalID:          s.newLocalID(),
		ContentType:      contentType,
		Bytes:            int64(len(data)),
		CreatedAt:        createdAt(start, s.now()),
	}

	if err := s.persist(ctx, rec); err != nil {
		s.compensate(ctx, stored)
		return nil, err
	}

	s.log.Info().
		Str("owner_id", ownerID).
		Str("record_id", rec.ID).
		Str("local_id", rec.LocalID).
		Str("backend", rec.StorageBackend).
		Int64("bytes", rec.Bytes).
		Msg("upload stored")
	return rec, nil
}

func (s *Service) upload(ctx context.Context, key string, data []byte, contentType string) (Stored, error) {
	var stored Stored
	err := s.executor.Execute(ctx, func(ctx context.Context, attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
		defer cancel()

		out, err := s.storage.Upload(callCtx, key, data, contentType)
		if err != nil {
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTransient) {
				err = fmt.Errorf("%w: %w", ErrTransient, err)
			}
			if attempt == 0 && isTransient(err) {
				s.log.Warn().Err(err).Str("key", key).Msg("transient storage failure, retrying once")
			}
			return err
		}
		stored = out
		return nil
	})
	if err != nil {
		return Stored{}, storageError(ctx, "storage backend upload failed", err, "3f1a7c2e-9b84-4d56-a0e3-6c2d8b9f1e47")
	}
	if strings.TrimSpace(stored.Location) == "" {
		return Stored{}, storageError(ctx, "storage backend returned no location", nil, "8e2b4d6f-1a3c-4e59-b7d0-2f9a6c8e4b13")
	}
	if stored.Key == "" {
		stored.Key = key
	}
	return stored, nil
}

func (s *Service) persist(ctx context.Context, rec *UploadRecord) error {
	callCtx, cancel := context.WithTimeout(ctx, s.metadataTimeout)
	defer cancel()

	if s.lifecycle == LifecycleLatest {
		displaced, err := s.repo.ReplaceLatest(callCtx, rec)
		if err != nil {
			return metadataError(ctx, "failed to replace latest upload record", err, "b4c8e1f2-6d3a-4f7b-9e05-1a2c3d4e5f60")
		}
		for _, old := range displaced {
			if s.holds(old) {
				s.removeBytes(ctx, old.Stored(), "displaced")
			}
		}
		return nil
	}

	if err := s.repo.Insert(callCtx, rec); err != nil {
		return metadataError(ctx, "failed to insert upload record", err, "c7d9f2a4-3e5b-4c81-8f06-9b1a2d3e4c5f")
	}
	return nil
}

// holds reports whether rec's bytes were written by the configured backend.
func (s *Service) holds(rec UploadRecord) bool {
	return rec.StorageBackend == s.storage.Name()
}

// compensate removes freshly uploaded bytes after the metadata write failed.
func (s *Service) compensate(ctx context.Context, stored Stored) {
	if !s.storage.ManagesBytes() && !stored.HasDeletionToken() {
		s.log.Warn().Str("location", stored.Location).Msg("metadata write failed; uploaded bytes are orphaned")
		return
	}
	s.removeBytes(ctx, stored, "compensation")
}

func (s *Service) removeBytes(ctx context.Context, stored Stored, reason string) {
	if !s.storage.ManagesBytes() && !stored.HasDeletionToken() {
		return
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storageTimeout)
	defer cancel()

	err := s.storage.Delete(callCtx, stored)
	switch {
	case err == nil:
		s.log.Debug().Str("key", stored.Key).Str("reason", reason).Msg("stored bytes removed")
	case errors.Is(err, ErrDeleteUnsupported):
		s.log.Warn().Str("location", stored.Location).Str("reason", reason).Msg("backend cannot delete; bytes left in place")
	default:
		s.log.Error().Err(err).Str("key", stored.Key).Str("reason", reason).Msg("best-effort delete of stored bytes failed")
	}
}

// List returns the owner's records, most recent first. It never returns nil on success.
func (s *Service) List(ctx context.Context, ownerID string) ([]UploadRecord, error) {
	ctx, span := s.tracer.Start(ctx, "upload.List", trace.WithAttributes(attribute.String("owner_id", ownerID)))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.metadataTimeout)
	defer cancel()

	records, err := s.repo.ListByOwner(callCtx, ownerID)
	if err != nil {
		return nil, endSpan(span, metadataError(ctx, "failed to list upload records", err, "d2e4f6a8-5b7c-4d9e-a1f3-7c8b9a0d1e2f"))
	}

	// Only ownerID's records leave this method, whatever the backend returned.
	owned := make([]UploadRecord, 0, len(records))
	for _, rec := range records {
		if rec.OwnerID == ownerID {
			owned = append(owned, rec)
		}
	}
	SortRecords(owned)
	span.SetAttributes(attribute.Int("count", len(owned)))
	return owned, nil
}

// Delete removes the owner's record addressed by ref (local id, location or id).
// Records belonging to other owners are reported exactly like absent ones.
func (s *Service) Delete(ctx context.Context, ownerID, ref string) (*DeleteResult, error) {
	ctx, span := s.tracer.Start(ctx, "upload.Delete", trace.WithAttributes(attribute.String("owner_id", ownerID)))
	defer span.End()

	ref = strings.TrimSpace(ref)
	if ref == "" || strings.TrimSpace(ownerID) == "" {
		return nil, endSpan(span, notFoundError(ctx, ownerID, ref))
	}

	var result *DeleteResult
	err := s.serialize(ctx, ownerID, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, s.metadataTimeout)
		defer cancel()

		rec, err := s.repo.DeleteOwned(callCtx, ownerID, ref)
		if err != nil {
			return metadataError(ctx, "failed to delete upload record", err, "e5f7a9b1-2c4d-4e6f-8a0b-3d5e7f9a1b2c")
		}
		if rec == nil {
			return notFoundError(ctx, ownerID, ref)
		}

		result = &DeleteResult{Record: *rec}
		if !s.storage.ManagesBytes() {
			return nil
		}
		if !s.holds(*rec) {
			s.log.Info().
				Str("record_id", rec.ID).
				Str("record_backend", rec.StorageBackend).
				Str("backend", s.storage.Name()).
				Msg("record was stored by another backend; bytes left in place")
			return nil
		}

		delCtx, delCancel := context.WithTimeout(context.WithoutCancel(ctx), s.storageTimeout)
		defer delCancel()
		if err := s.storage.Delete(delCtx, rec.Stored()); err != nil {
			result.BytesErr = storageError(ctx, "failed to remove stored bytes", err, "f8a0b2c4-6d8e-4f1a-b3c5-7e9f1a3b5c7d")
			platformerrors.LogError(s.log, result.BytesErr)
			return nil
		}
		result.BytesRemoved = true
		return nil
	})
	if err != nil {
		return nil, endSpan(span, err)
	}

	s.log.Info().
		Str("owner_id", ownerID).
		Str("record_id", result.Record.ID).
		Bool("bytes_removed", result.BytesRemoved).
		Msg("upload deleted")
	return result, nil
}

// serialize runs fn under the owner lock when each owner keeps a single record.
func (s *Service) serialize(ctx context.Context, ownerID string, fn func(ctx context.Context) error) error {
	if s.lifecycle != LifecycleLatest || s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithLock(ctx, ownerID, fn)
	if err != nil {
		var platformErr *platformerrors.PlatformError
		if !errors.As(err, &platformErr) {
			return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeInternal,
				"failed to acquire owner lock", err, "a1b3c5d7-e9f2-4a4b-8c6d-0e2f4a6b8c0d")
		}
	}
	return err
}

// SortRecords orders records most recent first, breaking ties by id.
func SortRecords(records []UploadRecord) {
	slices.SortStableFunc(records, func(a, b UploadRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// createdAt returns now at millisecond precision, never earlier than start.
func createdAt(start, now time.Time) time.Time {
	ts := now.UTC().Truncate(time.Millisecond)
	if ts.Before(start) {
		ts = ts.Add(time.Millisecond)
	}
	return ts
}

func safeKeySegment(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(platformerrors.TypeOf(err)))
	}
	return err
}
