package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/photo-bot/internal/config"
	"github.com/janhq/photo-bot/internal/domain/upload"
)

func newLocal(t *testing.T, baseURL string) *LocalStorage {
	t.Helper()
	cfg := &config.Config{LocalStoragePath: t.TempDir(), LocalStorageBaseURL: baseURL}
	storage, err := NewLocalStorage(cfg, zerolog.Nop())
	require.NoError(t, err)
	return storage
}

func TestLocalStorage_UploadOpenDelete(t *testing.T) {
	storage := newLocal(t, "https://bot.example.com")
	ctx := context.Background()

	stored, err := storage.Upload(ctx, "42_up_abc.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://bot.example.com/uploads/42_up_abc.png", stored.Location)
	assert.Equal(t, "42_up_abc.png", stored.Key)

	f, err := storage.Open("42_up_abc.png")
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(body))

	require.NoError(t, storage.Delete(ctx, stored))
	_, err = storage.Open("42_up_abc.png")
	assert.ErrorIs(t, err, ErrFileNotFound)

	// Deleting twice is not an error.
	assert.NoError(t, storage.Delete(ctx, stored))
}

func TestLocalStorage_FileLocationWithoutBaseURL(t *testing.T) {
	storage := newLocal(t, "")
	stored, err := storage.Upload(context.Background(), "a.jpg", []byte("x"), "image/jpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.Location, "file://"))
	assert.True(t, strings.HasSuffix(stored.Location, "/a.jpg"))
}

func TestLocalStorage_LeavesNoTempFiles(t *testing.T) {
	storage := newLocal(t, "")
	_, err := storage.Upload(context.Background(), "b.png", []byte("x"), "image/png")
	require.NoError(t, err)

	entries, err := os.ReadDir(storage.basePath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.png", entries[0].Name())
}

func TestLocalStorage_Health(t *testing.T) {
	storage := newLocal(t, "")
	assert.NoError(t, storage.Health(context.Background()))
	_, err := os.Stat(filepath.Join(storage.basePath, ".health_check"))
	assert.True(t, os.IsNotExist(err))
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"plain", "42_up_01h.png", true},
		{"empty", "", false},
		{"dot", ".", false},
		{"parent", "..", false},
		{"traversal", "../etc/passwd", false},
		{"encoded parent kept literal", "..%2fetc", false},
		{"nested", "a/b.png", false},
		{"backslash", `a\b.png`, false},
		{"hidden", ".health_check", false},
		{"nul", "a\x00b", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidName)
			}
		})
	}
}

func TestLocalStorage_OpenRejectsTraversal(t *testing.T) {
	storage := newLocal(t, "")
	_, err := storage.Open("../secret")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestBuildObjectURL(t *testing.T) {
	tests := []struct {
		name      string
		publicURL string
		endpoint  string
		pathStyle bool
		expected  string
	}{
		{"public base", "https://cdn.example.com", "http://minio:9000", true, "https://cdn.example.com/images/a%20b.png"},
		{"path style endpoint", "", "http://minio:9000", true, "http://minio:9000/photos/images/a%20b.png"},
		{"virtual endpoint", "", "https://storage.example.com", false, "https://photos.storage.example.com/images/a%20b.png"},
		{"aws virtual", "", "", false, "https://photos.s3.eu-west-1.amazonaws.com/images/a%20b.png"},
		{"aws path", "", "", true, "https://s3.eu-west-1.amazonaws.com/photos/images/a%20b.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildObjectURL(tt.publicURL, tt.endpoint, "photos", "eu-west-1", tt.pathStyle, "images/a b.png")
			assert.Equal(t, tt.expected, got)
		})
	}
}

func responseError(status int) error {
	return &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
			Err:      errors.New("api error"),
		},
	}
}

func TestClassifyS3Error(t *testing.T) {
	assert.ErrorIs(t, classifyS3Error("put object", responseError(503)), upload.ErrTransient)
	assert.ErrorIs(t, classifyS3Error("put object", context.DeadlineExceeded), upload.ErrTransient)

	permanent := classifyS3Error("put object", responseError(403))
	assert.NotErrorIs(t, permanent, upload.ErrTransient)
	assert.Contains(t, permanent.Error(), "put object")
}

func newImageHost(t *testing.T, handler http.HandlerFunc) *ImageHostStorage {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.Config{
		ImageHostAPIURL:     srv.URL + "/1/upload",
		ImageHostAPIKey:     "secret-key",
		ImageHostExpiration: 600,
		StorageTimeout:      2 * time.Second,
	}
	return NewImageHostStorage(cfg, zerolog.Nop())
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestImageHost_Success(t *testing.T) {
	storage := newImageHost(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "secret-key", r.FormValue("key"))
		assert.Equal(t, "600", r.FormValue("expiration"))
		assert.Equal(t, "42_up_x", r.FormValue("name"))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "42_up_x.png", header.Filename)
		assert.Equal(t, "img", string(data))

		writeJSON(w, http.StatusOK, `{"success":true,"status":200,"data":{"id":"abc","url":"https://i.host/abc.png","delete_url":"https://host/abc/del"}}`)
	})
	assert.False(t, storage.ManagesBytes())

	stored, err := storage.Upload(context.Background(), "42_up_x.png", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://i.host/abc.png", stored.Location)
	assert.Equal(t, "abc", stored.Key)
	assert.Equal(t, "https://host/abc/del", stored.DeletionToken)
}

func TestImageHost_AcceptsAny2xx(t *testing.T) {
	storage := newImageHost(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, `{"success":true,"status":201,"data":{"id":"abc","url":"https://i.host/abc.png"}}`)
	})

	stored, err := storage.Upload(context.Background(), "42_up_x.png", []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://i.host/abc.png", stored.Location)
	assert.False(t, stored.HasDeletionToken())
}

func TestImageHost_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"server error", http.StatusBadGateway, `{"status_code":502}`, true},
		{"bad request", http.StatusBadRequest, `{"status_code":400,"error":{"message":"Invalid API v1 key.","code":100}}`, false},
		{"success false", http.StatusOK, `{"success":false,"status":200,"data":{"url":"https://i.host/a"}}`, false},
		{"missing url", http.StatusOK, `{"success":true,"status":200,"data":{"id":"a"}}`, false},
		{"missing data", http.StatusOK, `{"success":true,"status":200}`, false},
		{"no content", http.StatusNoContent, ``, false},
		{"body status error", http.StatusOK, `{"success":true,"status":400,"data":{"url":"https://i.host/a"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newImageHost(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := storage.Upload(context.Background(), "k.png", []byte("img"), "image/png")
			require.Error(t, err)
			assert.Equal(t, tt.transient, errors.Is(err, upload.ErrTransient))
		})
	}
}

func TestImageHost_TimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	storage := newImageHost(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := storage.Upload(ctx, "k.png", []byte("img"), "image/png")
	assert.ErrorIs(t, err, upload.ErrTransient)
}

func TestImageHost_DeleteUnsupported(t *testing.T) {
	storage := newImageHost(t, func(w http.ResponseWriter, r *http.Request) {})
	err := storage.Delete(context.Background(), upload.Stored{DeletionToken: "x"})
	assert.ErrorIs(t, err, upload.ErrDeleteUnsupported)
}
