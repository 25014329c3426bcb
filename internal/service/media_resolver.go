package service

import (
	"context"
	"log/slog"

	"plume/internal/media"
	"plume/internal/middleware"
	"plume/internal/observability"
)

// MediaResolver turns stored attachment names into remote media handles by
// uploading each file through the configured uploader.
type MediaResolver struct {
	store    *media.Store
	uploader MediaUploader
}

func NewMediaResolver(store *media.Store, uploader MediaUploader) *MediaResolver {
	return &MediaResolver{store: store, uploader: uploader}
}

// Resolve uploads the stored attachments and returns their handles in input
// order. A file that cannot be read or uploaded is skipped rather than
// failing the whole post, matching how a missing attachment should degrade.
func (r *MediaResolver) Resolve(ctx context.Context, stored []string) []string {
	if len(stored) == 0 {
		return nil
	}

	handles := make([]string, 0, len(stored))
	for _, name := range stored {
		id, err := r.resolveOne(ctx, name)
		if err != nil {
			observability.MediaUploadsTotal.WithLabelValues("error").Inc()
			middleware.Logger.WarnContext(ctx, "Skipping attachment",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		observability.MediaUploadsTotal.WithLabelValues("success").Inc()
		handles = append(handles, id)
	}
	return handles
}

func (r *MediaResolver) resolveOne(ctx context.Context, stored string) (string, error) {
	f, _, err := r.store.Open(stored)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return r.uploader.UploadMedia(ctx, stored, f)
}
