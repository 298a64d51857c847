package processor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/queue"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
	"github.com/solusinc/manylead-cloud-sub003/internal/service"
	"github.com/solusinc/manylead-cloud-sub003/internal/whatsapp"
)

const (
	testOrg      = "org-1"
	testInstance = "inst-1"
)

type recordingPublisher struct {
	events.Nop
	messagesCreated []models.Message
	chatsCreated    []models.Chat
}

func (r *recordingPublisher) MessageCreated(_ context.Context, _ string, msg *models.Message, _ events.Context) error {
	r.messagesCreated = append(r.messagesCreated, *msg)
	return nil
}

func (r *recordingPublisher) ChatCreated(_ context.Context, _ string, chat *models.Chat, _ events.Context) error {
	r.chatsCreated = append(r.chatsCreated, *chat)
	return nil
}

type fakeProfiles struct{ url string }

func (f fakeProfiles) ProfilePictureURL(context.Context, string, string) (string, error) {
	return f.url, nil
}

type fakeEnqueuer struct{ jobs []queue.MediaJob }

func (f *fakeEnqueuer) EnqueueMediaDownload(_ context.Context, job queue.MediaJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func newTestProcessor(mem *repository.Memory) (*Processor, *recordingPublisher, *fakeEnqueuer) {
	log := zap.NewNop()
	pub := &recordingPublisher{}
	enq := &fakeEnqueuer{}
	participants := service.NewParticipantService(mem.Participants())
	autoCancel := service.NewScheduledService(mem.Scheduled(), mem.Chats(), mem, log)
	p := New(mem.Chats(), mem.Messages(), mem.Attachments(), mem.Contacts(),
		participants, fakeProfiles{url: "https://pics/1"}, enq, autoCancel, pub, log)
	seq := 0
	p.newID = func() string { seq++; return fmt.Sprintf("id-%d", seq) }
	p.now = func() time.Time { return time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC) }
	return p, pub, enq
}

func textMessage(waID, jid, text string) *whatsapp.WebhookMessage {
	return &whatsapp.WebhookMessage{
		Key:              whatsapp.KeyInfo{ID: waID, RemoteJid: jid},
		PushName:         "Maria",
		MessageType:      "conversation",
		MessageTimestamp: 1748788200,
		Message:          &whatsapp.Payload{Conversation: text},
	}
}

func TestProcessCreatesContactChatAndMessage(t *testing.T) {
	mem := repository.NewMemory()
	p, pub, _ := newTestProcessor(mem)

	err := p.Process(context.Background(), testOrg, testInstance,
		textMessage("wa-1", "5511999999999@s.whatsapp.net", "oi"))
	if err != nil {
		t.Fatal(err)
	}

	contact, err := mem.FindByPhone(context.Background(), testOrg, "5511999999999")
	if err != nil {
		t.Fatalf("contact not created: %v", err)
	}
	if contact.Name != "Maria" {
		t.Fatalf("contact name %q", contact.Name)
	}
	if contact.ProfilePictureURL == nil || *contact.ProfilePictureURL != "https://pics/1" {
		t.Fatal("profile picture not stored")
	}

	if len(pub.chatsCreated) != 1 {
		t.Fatalf("want 1 chat created event, got %d", len(pub.chatsCreated))
	}
	chat := pub.chatsCreated[0]
	if chat.Status != models.ChatPending || chat.MessageSource != models.SourceWhatsApp {
		t.Fatalf("unexpected chat: %+v", chat)
	}

	msgs := mem.MessagesByChat(testOrg, chat.ID)
	if len(msgs) != 2 {
		t.Fatalf("want system + inbound message, got %d", len(msgs))
	}
	if msgs[0].Sender != models.SenderSystem || msgs[0].Content != "Session created at 14:30" {
		t.Fatalf("system message: %+v", msgs[0])
	}
	inbound := msgs[1]
	if inbound.Sender != models.SenderContact || inbound.Status != models.StatusReceived || inbound.Content != "oi" {
		t.Fatalf("inbound message: %+v", inbound)
	}

	stored, err := mem.FindByKey(context.Background(), testOrg, chat.Key())
	if err != nil {
		t.Fatal(err)
	}
	if stored.UnreadCount != 1 || stored.TotalMessages != 1 {
		t.Fatalf("aggregates: unread=%d total=%d", stored.UnreadCount, stored.TotalMessages)
	}
	if stored.LastMessage.Content != "oi" {
		t.Fatalf("tip content %q", stored.LastMessage.Content)
	}
	if len(pub.messagesCreated) != 1 {
		t.Fatalf("want 1 message created event, got %d", len(pub.messagesCreated))
	}
}

func TestProcessIsIdempotentPerWhatsappID(t *testing.T) {
	mem := repository.NewMemory()
	p, _, _ := newTestProcessor(mem)
	wm := textMessage("wa-1", "5511999999999@s.whatsapp.net", "oi")

	if err := p.Process(context.Background(), testOrg, testInstance, wm); err != nil {
		t.Fatal(err)
	}
	if err := p.Process(context.Background(), testOrg, testInstance, wm); err != nil {
		t.Fatal(err)
	}

	chat, err := mem.FindActiveByContact(context.Background(), testOrg, mustContactID(t, mem), ptr(testInstance))
	if err != nil {
		t.Fatal(err)
	}
	msgs := mem.MessagesByChat(testOrg, chat.ID)
	if len(msgs) != 2 {
		t.Fatalf("replay duplicated messages: %d", len(msgs))
	}
	if chat.UnreadCount != 1 {
		t.Fatalf("replay bumped unread: %d", chat.UnreadCount)
	}
}

func TestProcessGuards(t *testing.T) {
	mem := repository.NewMemory()
	p, pub, _ := newTestProcessor(mem)
	ctx := context.Background()

	own := textMessage("wa-own", "5511999999999@s.whatsapp.net", "echo")
	own.Key.FromMe = true
	group := textMessage("wa-grp", "12345@g.us", "group chatter")
	anon := textMessage("wa-anon", "999@lid", "no alt jid")

	for _, wm := range []*whatsapp.WebhookMessage{own, group, anon} {
		if err := p.Process(ctx, testOrg, testInstance, wm); err != nil {
			t.Fatalf("guard returned error: %v", err)
		}
	}
	if len(pub.chatsCreated) != 0 || len(pub.messagesCreated) != 0 {
		t.Fatal("guarded messages produced side effects")
	}
}

func TestProcessMediaDefersVisibility(t *testing.T) {
	mem := repository.NewMemory()
	p, pub, enq := newTestProcessor(mem)

	wm := &whatsapp.WebhookMessage{
		Key:              whatsapp.KeyInfo{ID: "wa-media", RemoteJid: "5511999999999@s.whatsapp.net"},
		MessageType:      "imageMessage",
		MessageTimestamp: 1748788200,
		Message: &whatsapp.Payload{ImageMessage: &whatsapp.MediaPart{
			URL: "https://cdn/img", Mimetype: "image/jpeg", FileName: "photo.jpg",
		}},
	}
	if err := p.Process(context.Background(), testOrg, testInstance, wm); err != nil {
		t.Fatal(err)
	}

	if len(enq.jobs) != 1 {
		t.Fatalf("want 1 media job, got %d", len(enq.jobs))
	}
	job := enq.jobs[0]
	if job.ExternalMediaID != "wa-media" || job.DirectMediaURL != "https://cdn/img" {
		t.Fatalf("job: %+v", job)
	}
	att, err := mem.FindAttachmentByID(context.Background(), testOrg, job.AttachmentID)
	if err != nil {
		t.Fatal(err)
	}
	if att.DownloadStatus != models.DownloadPending || att.StoragePath != "temp/wa-media" {
		t.Fatalf("attachment: %+v", att)
	}
	if len(pub.messagesCreated) != 0 {
		t.Fatal("media message must not emit created event before download")
	}
}

func TestProcessBumpsAssignedParticipant(t *testing.T) {
	mem := repository.NewMemory()
	p, _, _ := newTestProcessor(mem)
	ctx := context.Background()

	if err := p.Process(ctx, testOrg, testInstance, textMessage("wa-1", "5511999999999@s.whatsapp.net", "first")); err != nil {
		t.Fatal(err)
	}
	chat, err := mem.FindActiveByContact(ctx, testOrg, mustContactID(t, mem), ptr(testInstance))
	if err != nil {
		t.Fatal(err)
	}
	agent := "agent-9"
	chat.AssignedTo = &agent
	if err := mem.Replace(ctx, testOrg, chat); err != nil {
		t.Fatal(err)
	}

	if err := p.Process(ctx, testOrg, testInstance, textMessage("wa-2", "5511999999999@s.whatsapp.net", "second")); err != nil {
		t.Fatal(err)
	}
	part, err := mem.Get(ctx, testOrg, chat.Key(), agent)
	if err != nil {
		t.Fatal(err)
	}
	if part.UnreadCount != 1 {
		t.Fatalf("participant unread %d", part.UnreadCount)
	}
}

func mustContactID(t *testing.T, mem *repository.Memory) string {
	t.Helper()
	contact, err := mem.FindByPhone(context.Background(), testOrg, "5511999999999")
	if err != nil {
		t.Fatal(err)
	}
	return contact.ID
}

func ptr(s string) *string { return &s }
