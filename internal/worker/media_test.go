package worker

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/queue"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
)

type fakeDownloader struct {
	fail bool
	data []byte
	mime string
}

func (f *fakeDownloader) DownloadMedia(context.Context, string) ([]byte, string, error) {
	if f.fail {
		return nil, "", errors.New("media gone")
	}
	return f.data, f.mime, nil
}

type fakeUploader struct {
	uploads map[string][]byte
}

func (f *fakeUploader) Upload(_ context.Context, key, _ string, data []byte) (string, error) {
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = data
	return "https://blobs.example/" + key, nil
}

type createdRecorder struct {
	events.Nop
	created     []models.Message
	attachments []*models.Attachment
}

func (r *createdRecorder) MessageCreated(_ context.Context, _ string, msg *models.Message, ec events.Context) error {
	r.created = append(r.created, *msg)
	r.attachments = append(r.attachments, ec.Attachment)
	return nil
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := imaging.New(512, 512, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func seedMediaMessage(t *testing.T, mem *repository.Memory, mediaType models.MessageType) queue.MediaJob {
	t.Helper()
	ctx := context.Background()
	msg := &models.Message{
		ID: "m-1", Timestamp: testNow, ChatID: "chat-1", ChatCreatedAt: testNow,
		Sender: models.SenderContact, Type: mediaType, Status: models.StatusReceived,
	}
	if err := mem.InsertMessage(ctx, testOrg, msg); err != nil {
		t.Fatal(err)
	}
	att := &models.Attachment{
		ID: "att-1", MessageID: msg.ID, MessageTimestamp: msg.Timestamp,
		MediaType: mediaType, MimeType: "image/jpeg", FileName: "photo.jpg",
		StoragePath: "temp/wa-media-1", DownloadStatus: models.DownloadPending,
	}
	if err := mem.InsertAttachment(ctx, testOrg, att); err != nil {
		t.Fatal(err)
	}
	return queue.MediaJob{
		OrganizationID:   testOrg,
		ChatID:           msg.ChatID,
		ChatCreatedAt:    msg.ChatCreatedAt,
		MessageID:        msg.ID,
		MessageTimestamp: msg.Timestamp,
		AttachmentID:     att.ID,
		ExternalMediaID:  "wa-media-1",
		FileName:         att.FileName,
		MimeType:         att.MimeType,
		DirectMediaURL:   "https://media.example/wa-media-1",
	}
}

func TestProcessCompletesImageWithThumbnail(t *testing.T) {
	mem := repository.NewMemory()
	dl := &fakeDownloader{data: jpegBytes(t), mime: "image/jpeg"}
	up := &fakeUploader{}
	rec := &createdRecorder{}
	w := NewMediaWorker(mem.Attachments(), mem.Messages(), dl, up, rec, zap.NewNop(), 10, 2)
	job := seedMediaMessage(t, mem, models.TypeImage)

	if err := w.process(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	att, _ := mem.FindAttachmentByID(context.Background(), testOrg, "att-1")
	if att.DownloadStatus != models.DownloadCompleted {
		t.Fatalf("status %q", att.DownloadStatus)
	}
	wantKey := "media/org-1/att-1/photo.jpg"
	if att.StoragePath != wantKey || att.StorageURL != "https://blobs.example/"+wantKey {
		t.Fatalf("storage: %+v", att)
	}
	if att.ThumbnailPath != wantKey+".thumb.jpg" {
		t.Fatalf("thumbnail path %q", att.ThumbnailPath)
	}

	thumb, ok := up.uploads[att.ThumbnailPath]
	if !ok {
		t.Fatal("thumbnail not uploaded")
	}
	img, err := imaging.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() > thumbnailSize || img.Bounds().Dy() > thumbnailSize {
		t.Fatalf("thumbnail bounds %v", img.Bounds())
	}

	if len(rec.created) != 1 || rec.created[0].ID != "m-1" {
		t.Fatalf("created events: %+v", rec.created)
	}
	if rec.attachments[0] == nil || rec.attachments[0].DownloadStatus != models.DownloadCompleted {
		t.Fatal("event missing completed attachment")
	}
}

func TestProcessFailureStillSurfacesMessage(t *testing.T) {
	mem := repository.NewMemory()
	dl := &fakeDownloader{fail: true}
	up := &fakeUploader{}
	rec := &createdRecorder{}
	w := NewMediaWorker(mem.Attachments(), mem.Messages(), dl, up, rec, zap.NewNop(), 10, 2)
	job := seedMediaMessage(t, mem, models.TypeImage)

	if err := w.process(context.Background(), job); err == nil {
		t.Fatal("want download error")
	}

	att, _ := mem.FindAttachmentByID(context.Background(), testOrg, "att-1")
	if att.DownloadStatus != models.DownloadFailed {
		t.Fatalf("status %q", att.DownloadStatus)
	}
	if len(rec.created) != 1 {
		t.Fatal("message never surfaced")
	}
	if rec.attachments[0] == nil || rec.attachments[0].DownloadStatus != models.DownloadFailed {
		t.Fatal("event missing failed attachment")
	}
}

func TestProcessSkipsCompletedAttachment(t *testing.T) {
	mem := repository.NewMemory()
	dl := &fakeDownloader{fail: true} // would fail if reached
	rec := &createdRecorder{}
	w := NewMediaWorker(mem.Attachments(), mem.Messages(), dl, &fakeUploader{}, rec, zap.NewNop(), 10, 2)
	job := seedMediaMessage(t, mem, models.TypeImage)

	att, _ := mem.FindAttachmentByID(context.Background(), testOrg, "att-1")
	att.DownloadStatus = models.DownloadCompleted
	_ = mem.ReplaceAttachment(context.Background(), testOrg, att)

	if err := w.process(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if len(rec.created) != 0 {
		t.Fatal("replay must not re-emit")
	}
}

func TestStorageKeyFallsBackToExternalID(t *testing.T) {
	job := queue.MediaJob{OrganizationID: "org-1", AttachmentID: "att-1", ExternalMediaID: "wa-9"}
	if got := storageKey(job); got != "media/org-1/att-1/wa-9" {
		t.Fatalf("key %q", got)
	}
	job.FileName = "a/b.pdf"
	if got := storageKey(job); got != "media/org-1/att-1/a_b.pdf" {
		t.Fatalf("key %q", got)
	}
}
