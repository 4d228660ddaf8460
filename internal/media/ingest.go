// Package media validates uploaded forum images and relays them to object storage.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/db"
	"github.com/toonranks/toonranks/internal/metrics"
	"github.com/toonranks/toonranks/internal/models"
	"github.com/toonranks/toonranks/internal/storage"
	"github.com/toonranks/toonranks/pkg/config"
	"github.com/toonranks/toonranks/pkg/logging"
	"github.com/toonranks/toonranks/pkg/telemetry"
)

const mimeGIF = "image/gif"

var allowedMimes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	mimeGIF:      true,
}

// Upload is a file submitted for a thread
type Upload struct {
	ThreadID    int64
	PostID      *int64
	Filename    string
	ContentType string
	Data        []byte
}

// Result describes a stored upload
type Result struct {
	ID       int64  `json:"id"`
	URL      string `json:"url"`
	Mime     string `json:"mime"`
	Size     int64  `json:"size"`
	Width    *int   `json:"width"`
	Height   *int   `json:"height"`
	ThreadID int64  `json:"thread_id"`
	PostID   *int64 `json:"post_id"`
}

// Service ingests uploads
type Service struct {
	threads *db.ThreadRepository
	posts   *db.PostRepository
	media   *db.MediaRepository
	store   storage.ObjectStore
	cfg     config.MediaConfig
	logger  *zap.Logger
}

// NewService creates the media service
func NewService(repo *db.Repository, store storage.ObjectStore, cfg config.MediaConfig) *Service {
	return &Service{
		threads: db.NewThreadRepository(repo),
		posts:   db.NewPostRepository(repo),
		media:   db.NewMediaRepository(repo),
		store:   store,
		cfg:     cfg,
		logger:  logging.WithComponent("media"),
	}
}

// MaxUploadBytes is the largest body worth reading; anything bigger fails validation
func (s *Service) MaxUploadBytes() int64 {
	return max(s.cfg.MaxImageBytes, s.cfg.MaxGIFBytes)
}

// Upload validates an image, stores it and records its metadata
func (s *Service) Upload(ctx context.Context, actor *models.User, in Upload) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "media.Upload")
	defer span.End()

	thread, err := s.threads.GetByID(ctx, in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}
	if thread == nil {
		return nil, apperr.NotFound("Thread not found")
	}
	if in.PostID != nil {
		post, err := s.posts.GetByID(ctx, *in.PostID)
		if err != nil {
			return nil, fmt.Errorf("failed to load post: %w", err)
		}
		if post == nil || post.ThreadID != in.ThreadID {
			return nil, apperr.NotFound("Post not found")
		}
	}

	mime, width, height, err := s.validate(in)
	if err != nil {
		metrics.ModerationRejectionsTotal.WithLabelValues("upload").Inc()
		return nil, err
	}

	filename := in.Filename
	if strings.TrimSpace(filename) == "" {
		filename = "upload"
	}
	key := storage.NewKey("forum", "media", filename)
	size := int64(len(in.Data))
	url, err := s.store.Put(ctx, key, bytes.NewReader(in.Data), size, mime)
	if err != nil {
		return nil, apperr.Upstream("Failed to store upload", err)
	}

	record := &models.Media{
		ThreadID:   in.ThreadID,
		UploaderID: models.NullID(actor.ID),
		URL:        url,
		StorageKey: key,
		Mime:       mime,
		SizeBytes:  size,
		CreatedAt:  time.Now().UTC(),
	}
	if in.PostID != nil {
		record.PostID = models.NullID(*in.PostID)
	}
	if width != nil {
		record.Width.Int32, record.Width.Valid = int32(*width), true
		record.Height.Int32, record.Height.Valid = int32(*height), true
	}
	if err := s.media.Create(ctx, record); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", zap.String("key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("failed to save media: %w", err)
	}

	metrics.MediaUploadBytes.WithLabelValues(mime).Observe(float64(size))
	s.logger.Info("Media uploaded",
		zap.Int64("media_id", record.ID),
		zap.Int64("thread_id", in.ThreadID),
		zap.String("mime", mime),
		zap.Int64("size", size),
	)

	return &Result{
		ID:       record.ID,
		URL:      url,
		Mime:     mime,
		Size:     size,
		Width:    width,
		Height:   height,
		ThreadID: in.ThreadID,
		PostID:   in.PostID,
	}, nil
}

// validate checks type, size and dimensions. Dimensions are nil when the
// image header cannot be decoded.
func (s *Service) validate(in Upload) (string, *int, *int, error) {
	declared := strings.ToLower(strings.TrimSpace(in.ContentType))
	if !allowedMimes[declared] {
		return "", nil, nil, apperr.ValidationField("file", "Unsupported image type.")
	}
	if len(in.Data) == 0 {
		return "", nil, nil, apperr.ValidationField("file", "Empty file.")
	}
	if !mimetype.Detect(in.Data).Is(declared) {
		return "", nil, nil, apperr.ValidationField("file", "File content does not match its type.")
	}

	isGIF := declared == mimeGIF
	size := int64(len(in.Data))
	if isGIF && size > s.cfg.MaxGIFBytes {
		return "", nil, nil, apperr.ValidationField("file", fmt.Sprintf("GIF too large (max %s).", humanBytes(s.cfg.MaxGIFBytes)))
	}
	if !isGIF && size > s.cfg.MaxImageBytes {
		return "", nil, nil, apperr.ValidationField("file", fmt.Sprintf("Image too large (max %s).", humanBytes(s.cfg.MaxImageBytes)))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(in.Data))
	if err != nil {
		s.logger.Debug("Could not read image dimensions", zap.Error(err))
		return declared, nil, nil, nil
	}
	limit, kind := s.cfg.MaxImageDim, "Image"
	if isGIF {
		limit, kind = s.cfg.MaxGIFDim, "GIF"
	}
	if cfg.Width > limit || cfg.Height > limit {
		return "", nil, nil, apperr.ValidationField("file", fmt.Sprintf("%s dimensions too large (max %d×%d).", kind, limit, limit))
	}
	return declared, &cfg.Width, &cfg.Height, nil
}

func humanBytes(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%d MB", n>>20)
	}
	return fmt.Sprintf("%d KB", n/1024)
}
