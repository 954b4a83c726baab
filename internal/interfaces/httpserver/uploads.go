package httpserver

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/janhq/photo-bot/internal/infrastructure/storage"
)

// FileOpener serves stored files by name.
type FileOpener interface {
	Open(name string) (*os.File, error)
}

func registerUploadRoutes(engine *gin.Engine, files FileOpener, log zerolog.Logger) {
	// The wildcard also catches nested paths so they are rejected instead of falling through to 404.
	engine.GET(storage.UploadsRoute+"/*filename", uploadHandler(files, log))
}

func uploadHandler(files FileOpener, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := strings.TrimPrefix(c.Param("filename"), "/")

		file, err := files.Open(name)
		switch {
		case errors.Is(err, storage.ErrInvalidName):
			c.String(http.StatusBadRequest, "invalid file name")
			return
		case errors.Is(err, storage.ErrFileNotFound):
			c.String(http.StatusNotFound, "not found")
			return
		case err != nil:
			log.Error().Err(err).Str("file", name).Msg("failed to open stored file")
			c.String(http.StatusInternalServerError, "internal error")
			return
		}
		defer file.Close()

		info, err := file.Stat()
		if err != nil {
			c.String(http.StatusInternalServerError, "internal error")
			return
		}
		if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
			c.Header("Content-Type", ct)
		}
		c.Header("X-Content-Type-Options", "nosniff")
		http.ServeContent(c.Writer, c.Request, name, info.ModTime(), file)
	}
}
