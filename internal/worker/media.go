// Package worker hosts the background loops: media download completion and
// scheduled message dispatch.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/metrics"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/queue"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
)

const thumbnailSize = 256

// Downloader pulls the media binary from the gateway or a direct URL.
type Downloader interface {
	DownloadMedia(ctx context.Context, url string) ([]byte, string, error)
}

// Uploader persists the binary and returns its public URL, if any.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// MediaWorker completes media messages: download, thumbnail, durable upload,
// and the deferred created event that makes the message visible.
type MediaWorker struct {
	attachments repository.AttachmentStore
	messages    repository.MessageStore
	downloader  Downloader
	uploader    Uploader
	events      events.Publisher
	log         *zap.Logger
	limiter     *rate.Limiter
	sem         chan struct{}
}

func NewMediaWorker(
	attachments repository.AttachmentStore,
	messages repository.MessageStore,
	downloader Downloader,
	uploader Uploader,
	pub events.Publisher,
	log *zap.Logger,
	downloadsPerSecond float64,
	maxConcurrent int,
) *MediaWorker {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &MediaWorker{
		attachments: attachments,
		messages:    messages,
		downloader:  downloader,
		uploader:    uploader,
		events:      pub,
		log:         log,
		limiter:     rate.NewLimiter(rate.Limit(downloadsPerSecond), 1),
		sem:         make(chan struct{}, maxConcurrent),
	}
}

// Handle is the queue consumer entry point. The slow part runs on its own
// goroutine behind the semaphore so one stuck download does not stall the
// partition; failures land on the attachment row, not the queue.
func (w *MediaWorker) Handle(ctx context.Context, job queue.MediaJob) error {
	if err := w.limiter.Wait(ctx); err != nil {
		return err
	}
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	go func() {
		defer func() { <-w.sem }()
		start := time.Now()
		if err := w.process(ctx, job); err != nil {
			metrics.MediaJobs.WithLabelValues("failed").Inc()
			w.log.Error("media job failed",
				zap.String("org", job.OrganizationID),
				zap.String("attachment", job.AttachmentID),
				zap.Error(err))
		} else {
			metrics.MediaJobs.WithLabelValues("completed").Inc()
		}
		metrics.MediaJobDuration.Observe(time.Since(start).Seconds())
	}()
	return nil
}

func (w *MediaWorker) process(ctx context.Context, job queue.MediaJob) error {
	att, err := w.attachments.FindByID(ctx, job.OrganizationID, job.AttachmentID)
	if err != nil {
		return err
	}
	if att.DownloadStatus == models.DownloadCompleted {
		return nil
	}

	data, contentType, err := w.downloader.DownloadMedia(ctx, job.DirectMediaURL)
	if err != nil {
		w.fail(ctx, job.OrganizationID, att)
		w.emit(ctx, job, att)
		return err
	}
	if contentType == "" {
		contentType = job.MimeType
	}

	key := storageKey(job)
	url, err := w.uploader.Upload(ctx, key, contentType, data)
	if err != nil {
		w.fail(ctx, job.OrganizationID, att)
		w.emit(ctx, job, att)
		return err
	}
	att.StoragePath = key
	att.StorageURL = url

	if att.MediaType == models.TypeImage {
		if thumbKey, err := w.uploadThumbnail(ctx, key, data); err != nil {
			w.log.Warn("thumbnail generation failed",
				zap.String("attachment", att.ID),
				zap.Error(err))
		} else {
			att.ThumbnailPath = thumbKey
		}
	}

	att.DownloadStatus = models.DownloadCompleted
	if err := w.attachments.Replace(ctx, job.OrganizationID, att); err != nil {
		return err
	}
	w.emit(ctx, job, att)
	return nil
}

func (w *MediaWorker) fail(ctx context.Context, orgID string, att *models.Attachment) {
	att.DownloadStatus = models.DownloadFailed
	if err := w.attachments.Replace(ctx, orgID, att); err != nil {
		w.log.Error("attachment status update failed", zap.String("attachment", att.ID), zap.Error(err))
	}
}

// emit publishes the message created event that ingestion withheld. Sent for
// both outcomes: the message must surface even when its media never arrives.
func (w *MediaWorker) emit(ctx context.Context, job queue.MediaJob, att *models.Attachment) {
	msg, err := w.messages.FindByKey(ctx, job.OrganizationID, models.MessageKey{ID: job.MessageID, Timestamp: job.MessageTimestamp})
	if err != nil {
		w.log.Error("message lookup for media event failed", zap.String("message", job.MessageID), zap.Error(err))
		return
	}
	_ = w.events.MessageCreated(ctx, job.OrganizationID, msg, events.Context{Attachment: att})
}

func (w *MediaWorker) uploadThumbnail(ctx context.Context, key string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	thumb := imaging.Thumbnail(img, thumbnailSize, thumbnailSize, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG); err != nil {
		return "", err
	}
	thumbKey := key + ".thumb.jpg"
	if _, err := w.uploader.Upload(ctx, thumbKey, "image/jpeg", buf.Bytes()); err != nil {
		return "", err
	}
	return thumbKey, nil
}

func storageKey(job queue.MediaJob) string {
	name := job.FileName
	if name == "" {
		name = job.ExternalMediaID
	}
	name = strings.ReplaceAll(name, "/", "_")
	return fmt.Sprintf("media/%s/%s/%s", job.OrganizationID, job.AttachmentID, name)
}
