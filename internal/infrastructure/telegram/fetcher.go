package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/janhq/photo-bot/internal/config"
	"github.com/janhq/photo-bot/internal/utils/platformerrors"
)

// FileResolver turns a file id into a downloadable file path.
type FileResolver interface {
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// Fetcher downloads message attachments by file reference.
type Fetcher struct {
	resolver     FileResolver
	token        string
	fileEndpoint string
	maxBytes     int64
	timeout      time.Duration
	httpClient   *resty.Client
	log          zerolog.Logger
}

func NewFetcher(cfg *config.Config, resolver FileResolver, log zerolog.Logger) *Fetcher {
	client := resty.New().
		SetHeader("User-Agent", "photo-bot/1.0").
		SetTimeout(cfg.TransportFetchTimeout)
	return &Fetcher{
		resolver:     resolver,
		token:        cfg.TelegramToken,
		fileEndpoint: cfg.TelegramFileEndpoint,
		maxBytes:     cfg.MaxImageBytes,
		timeout:      cfg.TransportFetchTimeout,
		httpClient:   client,
		log:          log.With().Str("component", "telegram-fetcher").Logger(),
	}
}

// Fetch returns the bytes behind fileRef.
func (f *Fetcher) Fetch(ctx context.Context, fileRef string) ([]byte, error) {
	if strings.TrimSpace(fileRef) == "" {
		return nil, transportError(ctx, "file reference is empty", nil, "1a3c5e7f-9b2d-4f6a-8c0e-2b4d6f8a0c13")
	}

	// Resolve and download share one TRANSPORT_FETCH_TIMEOUT budget.
	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	file, err := f.resolve(callCtx, fileRef)
	if err != nil {
		return nil, transportError(ctx, "failed to resolve file reference", f.redact(err), "2b4d6f8a-0c3e-4a7b-9d1f-3c5e7a9b1d24")
	}
	if f.maxBytes > 0 && int64(file.FileSize) > f.maxBytes {
		return nil, transportError(ctx, fmt.Sprintf("file exceeds %d bytes", f.maxBytes), nil, "3c5e7a9b-1d4f-4b8c-8e2a-4d6f8b0c2e35")
	}
	if file.FilePath == "" {
		return nil, transportError(ctx, "file reference has no download path", nil, "4d6f8b0c-2e5a-4c9d-9f3b-5e7a9c1d3f46")
	}

	resp, err := f.httpClient.R().
		SetContext(callCtx).
		SetDoNotParseResponse(true).
		Get(f.DownloadURL(file.FilePath))
	if err != nil {
		return nil, transportError(ctx, "failed to download file", f.redact(err), "5e7a9c1d-3f6b-4dae-8a4c-6f8b0d2e4a57")
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, transportError(ctx, fmt.Sprintf("file download returned status %d", resp.StatusCode()), nil, "6f8b0d2e-4a7c-4ebf-9b5d-7a9c1e3f5b68")
	}

	data, err := readLimited(body, f.maxBytes)
	if err != nil {
		return nil, transportError(ctx, "failed to read file", err, "7a9c1e3f-5b8d-4fc0-8c6e-8b0d2f4a6c79")
	}
	if len(data) == 0 {
		return nil, transportError(ctx, "downloaded file is empty", nil, "8b0d2f4a-6c9e-4ad1-9d7f-9c1e3a5b7d80")
	}

	f.log.Debug().Str("file_id", fileRef).Int("bytes", len(data)).Msg("file fetched")
	return data, nil
}

// resolve runs getFile, which takes no context, and gives up when ctx ends.
// The abandoned call is still bounded by the Bot API client's own timeout.
func (f *Fetcher) resolve(ctx context.Context, fileRef string) (tgbotapi.File, error) {
	type result struct {
		file tgbotapi.File
		err  error
	}
	done := make(chan result, 1)
	go func() {
		file, err := f.resolver.GetFile(tgbotapi.FileConfig{FileID: fileRef})
		done <- result{file: file, err: err}
	}()

	select {
	case <-ctx.Done():
		return tgbotapi.File{}, ctx.Err()
	case r := <-done:
		return r.file, r.err
	}
}

// DownloadURL builds the file endpoint address for a resolved file path.
func (f *Fetcher) DownloadURL(filePath string) string {
	return fmt.Sprintf(f.fileEndpoint, f.token, filePath)
}

// redact strips the bot token, which is part of every file URL.
func (f *Fetcher) redact(err error) error {
	if f.token == "" || !strings.Contains(err.Error(), f.token) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), f.token, "<token>"))
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}
	return data, nil
}

func transportError(ctx context.Context, message string, err error, uuid string) error {
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeTransport, message, err, uuid)
}
