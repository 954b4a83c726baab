package upload

import "time"

// Lifecycle selects how records accumulate per owner.
type Lifecycle string

const (
	// LifecycleHistory appends one record per upload.
	LifecycleHistory Lifecycle = "history"
	// LifecycleLatest keeps only the most recent record per owner.
	LifecycleLatest Lifecycle = "latest"
)

// UploadRecord points at one stored image.
type UploadRecord struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	OwnerDisplayName string    `json:"owner_display_name,omitempty"`
	Location         string    `json:"location"`
	StorageBackend   string    `json:"storage_backend"`
	StorageKey       string    `json:"storage_key"`
	DeletionToken    string    `json:"deletion_token,omitempty"`
	LocalID          string    `json:"local_id,omitempty"`
	ContentType      string    `json:"content_type"`
	Bytes            int64     `json:"bytes"`
	CreatedAt        time.Time `json:"created_at"`
}

// Stored returns the storage reference of the record.
func (r UploadRecord) Stored() Stored {
	return Stored{
		Location:      r.Location,
		Key:           r.StorageKey,
		DeletionToken: r.DeletionToken,
	}
}

// Stored is what a storage backend hands back after accepting bytes.
type Stored struct {
	Location      string
	Key           string
	DeletionToken string
}

// HasDeletionToken reports whether the backend issued a deletion token.
func (s Stored) HasDeletionToken() bool {
	return s.DeletionToken != ""
}

// DeleteResult acknowledges a delete. BytesErr is set when the metadata record
// was removed but the stored bytes could not be.
type DeleteResult struct {
	Record       UploadRecord
	BytesRemoved bool
	BytesErr     error
}
