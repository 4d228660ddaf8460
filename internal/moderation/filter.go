package moderation

import (
	"context"

	"github.com/toonranks/toonranks/internal/apperr"
	"github.com/toonranks/toonranks/internal/metrics"
)

// Filter combines the word filter and the image guard
type Filter struct {
	words  *Profanity
	images *ImageGuard
}

// NewFilter creates a filter; a nil image guard disables image checks
func NewFilter(words *Profanity, images *ImageGuard) *Filter {
	if words == nil {
		words = NewProfanity()
	}
	return &Filter{words: words, images: images}
}

// CheckText rejects profanity in a plain text field such as a title
func (f *Filter) CheckText(field, text string) error {
	if match, found := f.words.Check(text); found {
		metrics.ModerationRejectionsTotal.WithLabelValues("profanity").Inc()
		return apperr.Profanity(field, match)
	}
	return nil
}

// CheckMarkdown rejects profanity and disallowed embedded images
func (f *Filter) CheckMarkdown(ctx context.Context, field, markdown string) error {
	if err := f.CheckText(field, markdown); err != nil {
		return err
	}
	if f.images == nil {
		return nil
	}
	if err := f.images.Check(ctx, markdown); err != nil {
		if e, ok := err.(*apperr.Error); ok && e.Field == "" {
			e.Field = field
		}
		return err
	}
	return nil
}
