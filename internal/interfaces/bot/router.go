package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/infrastructure/metrics"
	"github.com/janhq/photo-bot/internal/utils/platformerrors"
)

// Intent is what an inbound message asks for.
type Intent string

const (
	IntentStart   Intent = "start"
	IntentHelp    Intent = "help"
	IntentUpload  Intent = "upload"
	IntentList    Intent = "list"
	IntentDelete  Intent = "delete"
	IntentUnknown Intent = "unknown"
)

// Sender identifies who sent a message.
type Sender struct {
	ID          string
	Username    string
	DisplayName string
}

// Inbound is a transport-neutral view of one received message.
type Inbound struct {
	UpdateID  string
	ChatID    int64
	MessageID int
	Sender    Sender
	// Command is the bot command without the leading slash or @botname suffix.
	Command string
	Args    string
	Text    string
	// FileRef references an image attachment on the transport.
	FileRef string
	// Unsupported is set when the message carried a non-image attachment.
	Unsupported bool
}

// Reply is the text sent back for an inbound message.
type Reply struct {
	Text string
}

// Coordinator is the upload surface the router drives.
type Coordinator interface {
	Store(ctx context.Context, ownerID, displayName string, data []byte) (*upload.UploadRecord, error)
	List(ctx context.Context, ownerID string) ([]upload.UploadRecord, error)
	Delete(ctx context.Context, ownerID, ref string) (*upload.DeleteResult, error)
}

// Fetcher downloads an attachment by transport file reference.
type Fetcher interface {
	Fetch(ctx context.Context, fileRef string) ([]byte, error)
}

// Router maps inbound messages to coordinator operations and reply texts.
type Router struct {
	coordinator Coordinator
	fetcher     Fetcher
	location    *time.Location
	log         zerolog.Logger
}

func NewRouter(coordinator Coordinator, fetcher Fetcher, log zerolog.Logger) *Router {
	return &Router{
		coordinator: coordinator,
		fetcher:     fetcher,
		location:    time.UTC,
		log:         log.With().Str("component", "router").Logger(),
	}
}

// Classify returns the intent of in. Attachments win over captions.
func Classify(in Inbound) Intent {
	if in.FileRef != "" {
		return IntentUpload
	}
	switch strings.ToLower(strings.TrimSpace(in.Command)) {
	case "start":
		return IntentStart
	case "help":
		return IntentHelp
	case "history", "list":
		return IntentList
	case "delete":
		return IntentDelete
	}
	return IntentUnknown
}

// Handle processes one inbound message. It always produces a reply and never panics.
func (r *Router) Handle(ctx context.Context, in Inbound) (reply Reply) {
	if in.UpdateID != "" {
		ctx = platformerrors.WithUpdateID(ctx, in.UpdateID)
	}
	intent := Classify(in)
	start := time.Now()
	outcome := "ok"

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Str("intent", string(intent)).
				Str("owner_id", in.Sender.ID).
				Str("panic", fmt.Sprint(rec)).
				Msg("handler panicked")
			reply = Reply{Text: genericErrorText}
			outcome = "panic"
		}
		metrics.RecordCommand(string(intent), outcome, time.Since(start).Seconds())
	}()

	var err error
	reply, err = r.dispatch(ctx, intent, in)
	if err != nil {
		outcome = strings.ToLower(string(platformerrors.TypeOf(err)))
		r.logFailure(intent, in, err)
		reply = Reply{Text: errorText(intent, err)}
	}
	return reply
}

func (r *Router) dispatch(ctx context.Context, intent Intent, in Inbound) (Reply, error) {
	switch intent {
	case IntentStart:
		return Reply{Text: welcomeText(firstNonEmpty(in.Sender.DisplayName, in.Sender.Username))}, nil
	case IntentHelp:
		return Reply{Text: helpText}, nil
	case IntentUpload:
		return r.handleUpload(ctx, in)
	case IntentList:
		return r.handleList(ctx, in)
	case IntentDelete:
		return r.handleDelete(ctx, in)
	default:
		if in.Unsupported {
			return Reply{Text: unsupportedFileText}, nil
		}
		return Reply{Text: unknownText}, nil
	}
}

func (r *Router) handleUpload(ctx context.Context, in Inbound) (Reply, error) {
	data, err := r.fetcher.Fetch(ctx, in.FileRef)
	if err != nil {
		if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeTransport) {
			err = platformerrors.NewError(ctx, platformerrors.LayerRouter, platformerrors.ErrorTypeTransport,
				"failed to fetch attachment", err, "b1d3f5a7-9c2e-4b6d-8f0a-1c3e5a7b9d21")
		}
		metrics.RecordUpload("unknown", err, 0)
		return Reply{}, err
	}

	rec, err := r.coordinator.Store(ctx, in.Sender.ID, in.Sender.DisplayName, data)
	if err != nil {
		metrics.RecordUpload("unknown", err, int64(len(data)))
		return Reply{}, err
	}
	metrics.RecordUpload(rec.ContentType, nil, rec.Bytes)
	return Reply{Text: uploadedText(rec)}, nil
}

func (r *Router) handleList(ctx context.Context, in Inbound) (Reply, error) {
	records, err := r.coordinator.List(ctx, in.Sender.ID)
	if err != nil {
		return Reply{}, err
	}
	if len(records) == 0 {
		return Reply{Text: emptyHistoryText}, nil
	}
	return Reply{Text: historyText(records, r.location)}, nil
}

func (r *Router) handleDelete(ctx context.Context, in Inbound) (Reply, error) {
	ref := strings.TrimSpace(in.Args)
	if ref == "" {
		return Reply{Text: deleteUsageText}, nil
	}
	res, err := r.coordinator.Delete(ctx, in.Sender.ID, ref)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: deletedText(res)}, nil
}

func (r *Router) logFailure(intent Intent, in Inbound, err error) {
	log := r.log.With().
		Str("intent", string(intent)).
		Str("owner_id", in.Sender.ID).
		Int64("chat_id", in.ChatID).
		Logger()
	if platformerrors.IsErrorType(err, platformerrors.ErrorTypeNotFound) {
		log.Info().Err(err).Msg("delete target not found")
		return
	}
	platformerrors.LogError(log, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
