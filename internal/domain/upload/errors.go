package upload

import (
	"context"
	"errors"

	"github.com/janhq/photo-bot/internal/utils/platformerrors"
)

var (
	// ErrTransient marks storage failures worth a single retry (timeouts, 5xx).
	ErrTransient = errors.New("transient storage failure")
	// ErrDeleteUnsupported is returned by backends without a delete API.
	ErrDeleteUnsupported = errors.New("storage backend does not support delete")
)

func storageError(ctx context.Context, message string, err error, uuid string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeStorageBackend, message, err, uuid)
}

func metadataError(ctx context.Context, message string, err error, uuid string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeMetadataWrite, message, err, uuid)
}

func notFoundError(ctx context.Context, ownerID, ref string) error {
	return platformerrors.NewErrorWithContext(
		ctx,
		platformerrors.LayerDomain,
		platformerrors.ErrorTypeNotFound,
		"upload not found",
		nil,
		"5d0c1e3a-8f47-4b62-9a1d-2e7f6c4b8a90",
		map[string]any{"owner_id": ownerID, "ref": ref},
	)
}

func validationError(ctx context.Context, message string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, message, nil, "0b6f2d9e-3c48-4a71-b5e2-9d8c7f1a6e34")
}

// IsNotFound reports whether err means the owner has no such upload.
func IsNotFound(err error) bool {
	return platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound)
}
