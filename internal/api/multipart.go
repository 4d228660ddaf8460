package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/media"
)

type formFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// formInt reads an integer form field; nil when absent and not required
func formInt(c *gin.Context, name string, required bool) (*int64, error) {
	raw := strings.TrimSpace(c.PostForm(name))
	if raw == "" {
		var tooLarge *http.MaxBytesError
		if err := c.Request.ParseMultipartForm(32 << 20); errors.As(err, &tooLarge) {
			return nil, apperr.Validation("Request too large")
		}
		if required {
			return nil, apperr.ValidationField(name, name+" is required")
		}
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return nil, apperr.ValidationField(name, name+" must be a positive integer")
	}
	return &n, nil
}

// readFormFile loads one uploaded file, refusing anything above maxBytes
func readFormFile(c *gin.Context, name string, maxBytes int64) (*formFile, error) {
	header, err := c.FormFile(name)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Validation("Request too large")
		}
		return nil, errMissingFile
	}
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, apperr.ValidationField(name, "File too large")
	}
	return &formFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func mediaUpload(threadID int64, postID *int64, f *formFile) media.Upload {
	return media.Upload{
		ThreadID:    threadID,
		PostID:      postID,
		Filename:    f.Filename,
		ContentType: f.ContentType,
		Data:        f.Data,
	}
}
