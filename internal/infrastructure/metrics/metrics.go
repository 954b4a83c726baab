package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Photo bot metrics
var (
	// Inbound updates received from the messaging transport
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photo_bot",
			Subsystem: "transport",
			Name:      "updates_total",
			Help:      "Total inbound updates by kind",
		},
		[]string{"kind"},
	)

	// Command outcomes at the router boundary
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photo_bot",
			Subsystem: "router",
			Name:      "commands_total",
			Help:      "Total handled commands by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "photo_bot",
			Subsystem: "router",
			Name:      "command_duration_seconds",
			Help:      "Command handling duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"intent"},
	)

	// Upload counters
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photo_bot",
			Subsystem: "uploads",
			Name:      "total",
			Help:      "Total image uploads",
		},
		[]string{"content_type", "status"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photo_bot",
			Subsystem: "uploads",
			Name:      "bytes_total",
			Help:      "Total bytes uploaded",
		},
		[]string{"content_type"},
	)

	// Storage backend operations
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photo_bot",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total storage backend operations",
		},
		[]string{"backend", "operation", "status"},
	)

	StorageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "photo_bot",
			Subsystem: "storage",
			Name:      "duration_seconds",
			Help:      "Storage backend operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 30},
		},
		[]string{"backend", "operation"},
	)

	// Metadata store operations
	MetadataOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "photo_bot",
			Subsystem: "metadata",
			Name:      "operations_total",
			Help:      "Total metadata store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	MetadataDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "photo_bot",
			Subsystem: "metadata",
			Name:      "duration_seconds",
			Help:      "Metadata store operation duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"backend", "operation"},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordUpdate records an inbound update
func RecordUpdate(kind string) {
	UpdatesTotal.WithLabelValues(kind).Inc()
}

// RecordCommand records a routed command
func RecordCommand(intent, outcome string, durationSec float64) {
	CommandsTotal.WithLabelValues(intent, outcome).Inc()
	CommandDuration.WithLabelValues(intent).Observe(durationSec)
}

// RecordUpload records an image upload
func RecordUpload(contentType string, err error, bytes int64) {
	st := status(err)
	UploadsTotal.WithLabelValues(contentType, st).Inc()
	if err == nil {
		UploadBytesTotal.WithLabelValues(contentType).Add(float64(bytes))
	}
}

// RecordStorageOperation records a storage backend call
func RecordStorageOperation(backend, operation string, err error, durationSec float64) {
	StorageOperationsTotal.WithLabelValues(backend, operation, status(err)).Inc()
	StorageDuration.WithLabelValues(backend, operation).Observe(durationSec)
}

// RecordMetadataOperation records a metadata store call
func RecordMetadataOperation(backend, operation string, err error, durationSec float64) {
	MetadataOperationsTotal.WithLabelValues(backend, operation, status(err)).Inc()
	MetadataDuration.WithLabelValues(backend, operation).Observe(durationSec)
}
