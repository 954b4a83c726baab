package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/janhq/photo-bot/internal/config"
	"github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/infrastructure/metrics"
)

// ImageHostStorage uploads to an imgbb compatible image hosting API.
type ImageHostStorage struct {
	apiURL     string
	apiKey     string
	expiration int
	httpClient *resty.Client
	log        zerolog.Logger
}

type imageHostResponse struct {
	Success bool           `json:"success"`
	Status  int            `json:"status"`
	Data    *imageHostData `json:"data"`
	Error   *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type imageHostData struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	DisplayURL string `json:"display_url"`
	DeleteURL  string `json:"delete_url"`
}

func NewImageHostStorage(cfg *config.Config, log zerolog.Logger) *ImageHostStorage {
	client := resty.New().
		SetHeader("User-Agent", "photo-bot/1.0").
		SetTimeout(cfg.StorageTimeout)
	return &ImageHostStorage{
		apiURL:     strings.TrimSpace(cfg.ImageHostAPIURL),
		apiKey:     cfg.ImageHostAPIKey,
		expiration: cfg.ImageHostExpiration,
		httpClient: client,
		log:        log.With().Str("component", "imagehost-storage").Logger(),
	}
}

func (h *ImageHostStorage) Name() string { return config.StorageImageHost }

// ManagesBytes is false: the hosting API has no authenticated delete call.
func (h *ImageHostStorage) ManagesBytes() bool { return false }

func (h *ImageHostStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (upload.Stored, error) {
	form := map[string]string{
		"key":  h.apiKey,
		"name": strings.TrimSuffix(key, fileExt(key)),
	}
	if h.expiration > 0 {
		form["expiration"] = strconv.Itoa(h.expiration)
	}

	var result imageHostResponse
	start := time.Now()
	resp, err := h.httpClient.R().
		SetContext(ctx).
		SetFormData(form).
		SetFileReader("image", key, bytes.NewReader(data)).
		SetResult(&result).
		SetError(&result).
		Post(h.apiURL)
	stored, err := h.interpret(resp, &result, err)
	metrics.RecordStorageOperation(h.Name(), "put", err, time.Since(start).Seconds())
	if err != nil {
		return upload.Stored{}, err
	}

	h.log.Debug().Str("key", key).Str("location", stored.Location).Msg("image hosted")
	return stored, nil
}

func (h *ImageHostStorage) interpret(resp *resty.Response, result *imageHostResponse, err error) (upload.Stored, error) {
	if err != nil {
		if isTimeout(err) {
			return upload.Stored{}, fmt.Errorf("%w: image host request timed out: %w", upload.ErrTransient, err)
		}
		return upload.Stored{}, fmt.Errorf("image host request failed: %w", err)
	}

	code := resp.StatusCode()
	if code >= http.StatusInternalServerError {
		return upload.Stored{}, fmt.Errorf("%w: image host error (%d)", upload.ErrTransient, code)
	}
	if code < http.StatusOK || code >= http.StatusMultipleChoices {
		msg := ""
		if result.Error != nil {
			msg = result.Error.Message
		}
		return upload.Stored{}, fmt.Errorf("image host rejected upload (%d): %s", code, msg)
	}
	if !result.Success {
		return upload.Stored{}, fmt.Errorf("image host reported failure")
	}
	if result.Status != 0 && (result.Status < http.StatusOK || result.Status >= http.StatusMultipleChoices) {
		return upload.Stored{}, fmt.Errorf("image host reported status %d", result.Status)
	}
	if result.Data == nil || strings.TrimSpace(result.Data.URL) == "" {
		return upload.Stored{}, fmt.Errorf("image host response has no url")
	}

	return upload.Stored{
		Location:      result.Data.URL,
		Key:           result.Data.ID,
		DeletionToken: result.Data.DeleteURL,
	}, nil
}

// Delete is unsupported. The deletion token is a browser link, not an API call.
func (h *ImageHostStorage) Delete(ctx context.Context, stored upload.Stored) error {
	return upload.ErrDeleteUnsupported
}

func fileExt(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i:]
	}
	return ""
}
