package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
)

type messageFixture struct {
	mem    *repository.Memory
	pub    *recordingPublisher
	sender *fakeSender
	mirror *recordingMirror
	blobs  *nopBlobs
	svc    *MessageService
}

func newMessageFixture() *messageFixture {
	mem := repository.NewMemory()
	log := zap.NewNop()
	pub := &recordingPublisher{}
	sender := &fakeSender{}
	mir := &recordingMirror{}
	blobs := &nopBlobs{}
	participants := NewParticipantService(mem.Participants())
	autoCancel := NewScheduledService(mem.Scheduled(), mem.Chats(), mem, log)
	svc := NewMessageService(mem.Chats(), mem.Messages(), mem.Attachments(), mem.Contacts(), mem,
		participants, sender, blobs, mir, DefaultMirrorPolicy{}, autoCancel, pub, log)
	svc.now = func() time.Time { return testNow }
	svc.newID = sequentialIDs("msg")
	return &messageFixture{mem: mem, pub: pub, sender: sender, mirror: mir, blobs: blobs, svc: svc}
}

func TestCreateMessageRelaysAndUpdatesAggregates(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	f.mem.AddAgent(testOrg, models.Agent{ID: "agent-1", Name: "Alice"})
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)
	_ = f.mem.InsertScheduled(ctx, testOrg, &models.ScheduledMessage{
		ID: "sched-1", ChatID: chat.ID, ChatCreatedAt: chat.CreatedAt,
		ContentType: models.ScheduledMessageContent, Content: "later",
		ScheduledAt: testNow.Add(time.Hour), Status: models.ScheduledPending,
		CancelOnAgentMessage: true,
	})

	msg, err := f.svc.CreateMessage(ctx, testOrg, chat.Key(), CreateMessageInput{
		AgentID: "agent-1", Content: "hello there", TempID: "tmp-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != models.StatusSent || msg.WhatsappMessageID != "wa-out-1" {
		t.Fatalf("message: %+v", msg)
	}
	if f.sender.lastPhone != "5511999999999" {
		t.Fatalf("relayed to %q", f.sender.lastPhone)
	}
	if msg.Metadata[models.MetaTempID] != "tmp-1" {
		t.Fatal("temp id not stored")
	}

	stored, _ := f.mem.FindByKey(ctx, testOrg, chat.Key())
	if stored.LastMessage.Content != "hello there" || stored.TotalMessages != 1 {
		t.Fatalf("aggregates: %+v", stored.LastMessage)
	}
	sched, _ := f.mem.FindScheduledByID(ctx, testOrg, "sched-1")
	if sched.Status != models.ScheduledCancelled || sched.CancellationReason != models.CancelAgentMessage {
		t.Fatalf("scheduled: %+v", sched)
	}
	if len(f.pub.messagesCreated) != 1 {
		t.Fatal("created event missing")
	}
}

func TestCreateMessageKeepsFailedSend(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	f.mem.AddAgent(testOrg, models.Agent{ID: "agent-1", Name: "Alice"})
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)
	f.sender.fail = true

	msg, err := f.svc.CreateMessage(ctx, testOrg, chat.Key(), CreateMessageInput{
		AgentID: "agent-1", Content: "will not go out",
	})
	if err != nil {
		t.Fatalf("relay failure must not fail the call: %v", err)
	}
	if msg.Status != models.StatusFailed {
		t.Fatalf("status %q", msg.Status)
	}
	if v, ok := msg.Metadata[models.MetaErrorMessage].(string); !ok || v == "" {
		t.Fatal("error not recorded in metadata")
	}
	if got := f.mem.MessagesByChat(testOrg, chat.ID); len(got) != 1 {
		t.Fatalf("message not persisted: %d", len(got))
	}
}

func TestCreateMessageEmptyContentRejected(t *testing.T) {
	f := newMessageFixture()
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)
	_, err := f.svc.CreateMessage(context.Background(), testOrg, chat.Key(), CreateMessageInput{AgentID: "agent-1"})
	if !apperr.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestCreateMessageMirrorsInternalChats(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	f.mem.AddAgent(testOrg, models.Agent{ID: "agent-1", Name: "Alice"})
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)
	initiator := "agent-1"
	chat.MessageSource = models.SourceInternal
	chat.InitiatorAgentID = &initiator
	_ = f.mem.Replace(ctx, testOrg, chat)

	first, err := f.svc.CreateMessage(ctx, testOrg, chat.Key(), CreateMessageInput{AgentID: "agent-1", Content: "first"})
	if err != nil {
		t.Fatal(err)
	}
	if f.mirror.first != 1 || f.mirror.subsequent != 0 {
		t.Fatalf("mirror calls: first=%d subsequent=%d", f.mirror.first, f.mirror.subsequent)
	}
	if first.Status != models.StatusDelivered {
		t.Fatalf("mirrored message not promoted: %q", first.Status)
	}
	stored, _ := f.mem.FindByKey(ctx, testOrg, chat.Key())
	if stored.LastMessage.Status != models.StatusDelivered {
		t.Fatalf("tip not promoted with the row: %q", stored.LastMessage.Status)
	}

	if _, err := f.svc.CreateMessage(ctx, testOrg, chat.Key(), CreateMessageInput{AgentID: "agent-1", Content: "second"}); err != nil {
		t.Fatal(err)
	}
	if f.mirror.subsequent != 1 {
		t.Fatalf("subsequent mirror calls: %d", f.mirror.subsequent)
	}
}

func TestCreateMessageWithMediaUploadsAndRelays(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	f.mem.AddAgent(testOrg, models.Agent{ID: "agent-1", Name: "Alice"})
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)

	msg, err := f.svc.CreateMessage(ctx, testOrg, chat.Key(), CreateMessageInput{
		AgentID: "agent-1", Content: "check this out",
		Media: &MediaInput{FileName: "photo.jpg", MimeType: "image/jpeg", Data: []byte{0xff, 0xd8}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != models.TypeImage || msg.Status != models.StatusSent {
		t.Fatalf("message: type=%q status=%q", msg.Type, msg.Status)
	}
	if msg.WhatsappMessageID != "wa-media-1" {
		t.Fatalf("wa id %q", msg.WhatsappMessageID)
	}

	att, err := f.mem.FindByMessage(ctx, testOrg, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if att.DownloadStatus != models.DownloadCompleted || att.MediaType != models.TypeImage {
		t.Fatalf("attachment: %+v", att)
	}
	if att.StoragePath != "media/org-1/msg-2/photo.jpg" {
		t.Fatalf("storage path %q", att.StoragePath)
	}
	if len(f.blobs.uploaded) != 1 || f.blobs.uploaded[0] != att.StoragePath {
		t.Fatalf("uploads: %v", f.blobs.uploaded)
	}
	if len(f.sender.media) != 1 {
		t.Fatalf("media sends: %d", len(f.sender.media))
	}
	payload := f.sender.media[0]
	if payload.MediaType != "image" || payload.Caption != "check this out" || payload.MediaURL != att.StorageURL {
		t.Fatalf("payload: %+v", payload)
	}
	if len(f.pub.messagesCreated) != 1 {
		t.Fatal("created event missing")
	}
}

func TestCreateMessageMediaWithoutCaption(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	f.mem.AddAgent(testOrg, models.Agent{ID: "agent-1", Name: "Alice"})
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)

	msg, err := f.svc.CreateMessage(ctx, testOrg, chat.Key(), CreateMessageInput{
		AgentID: "agent-1",
		Media:   &MediaInput{FileName: "contract.pdf", MimeType: "application/pdf", Data: []byte("%PDF")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != models.TypeDocument {
		t.Fatalf("type %q", msg.Type)
	}

	_, err = f.svc.CreateMessage(ctx, testOrg, chat.Key(), CreateMessageInput{
		AgentID: "agent-1",
		Media:   &MediaInput{FileName: "empty.bin", MimeType: "application/octet-stream"},
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("want validation error for empty payload, got %v", err)
	}
}

func TestEditKeepsChatTipCoherent(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	f.mem.AddAgent(testOrg, models.Agent{ID: "agent-1", Name: "Alice"})
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)

	older, err := f.svc.CreateMessage(ctx, testOrg, chat.Key(), CreateMessageInput{AgentID: "agent-1", Content: "older"})
	if err != nil {
		t.Fatal(err)
	}
	f.svc.now = func() time.Time { return testNow.Add(time.Minute) }
	newer, err := f.svc.CreateMessage(ctx, testOrg, chat.Key(), CreateMessageInput{AgentID: "agent-1", Content: "newer"})
	if err != nil {
		t.Fatal(err)
	}

	// editing the non-tip message leaves the aggregate alone
	if _, err := f.svc.Edit(ctx, testOrg, older.Key(), "agent-1", "older edited"); err != nil {
		t.Fatal(err)
	}
	stored, _ := f.mem.FindByKey(ctx, testOrg, chat.Key())
	if stored.LastMessage.Content != "newer" {
		t.Fatalf("tip changed by non-tip edit: %q", stored.LastMessage.Content)
	}

	// editing the tip rewrites it
	if _, err := f.svc.Edit(ctx, testOrg, newer.Key(), "agent-1", "newer edited"); err != nil {
		t.Fatal(err)
	}
	stored, _ = f.mem.FindByKey(ctx, testOrg, chat.Key())
	if stored.LastMessage.Content != "newer edited" {
		t.Fatalf("tip not updated: %q", stored.LastMessage.Content)
	}
}

func TestEditOnlyByAuthor(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	f.mem.AddAgent(testOrg, models.Agent{ID: "agent-1", Name: "Alice"})
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)
	msg, err := f.svc.CreateMessage(ctx, testOrg, chat.Key(), CreateMessageInput{AgentID: "agent-1", Content: "mine"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Edit(ctx, testOrg, msg.Key(), "agent-2", "not yours"); !apperr.IsValidation(err) {
		t.Fatalf("want validation error, got %v", err)
	}
}

func TestDeleteSoftDeletesAndAdjustsUnread(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)
	inbound := &models.Message{
		ID: "m-1", Timestamp: testNow, ChatID: chat.ID, ChatCreatedAt: chat.CreatedAt,
		Sender: models.SenderContact, Type: models.TypeText, Content: "secret",
		Status: models.StatusReceived,
	}
	_ = f.mem.InsertMessage(ctx, testOrg, inbound)
	_ = f.mem.SetLastMessage(ctx, testOrg, chat.Key(), inbound.AsLastMessage())
	_ = f.mem.IncrementUnread(ctx, testOrg, chat.Key(), 1)

	if err := f.svc.Delete(ctx, testOrg, inbound.Key(), "agent-1"); err != nil {
		t.Fatal(err)
	}

	stored, _ := f.mem.FindMessageByKey(ctx, testOrg, inbound.Key())
	if !stored.IsDeleted || stored.Content != DeletedPlaceholder {
		t.Fatalf("message: %+v", stored)
	}
	chatAfter, _ := f.mem.FindByKey(ctx, testOrg, chat.Key())
	if chatAfter.UnreadCount != 0 {
		t.Fatalf("unread %d", chatAfter.UnreadCount)
	}
	if !chatAfter.LastMessage.IsDeleted {
		t.Fatal("tip not flagged deleted")
	}

	// repeated delete is a no-op, unread stays floored
	if err := f.svc.Delete(ctx, testOrg, inbound.Key(), "agent-1"); err != nil {
		t.Fatal(err)
	}
	chatAfter, _ = f.mem.FindByKey(ctx, testOrg, chat.Key())
	if chatAfter.UnreadCount != 0 {
		t.Fatalf("unread went negative path: %d", chatAfter.UnreadCount)
	}
}

func TestDeletePurgesAttachment(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)
	msg := &models.Message{
		ID: "m-1", Timestamp: testNow, ChatID: chat.ID, ChatCreatedAt: chat.CreatedAt,
		Sender: models.SenderContact, Type: models.TypeImage, Status: models.StatusRead,
	}
	_ = f.mem.InsertMessage(ctx, testOrg, msg)
	_ = f.mem.InsertAttachment(ctx, testOrg, &models.Attachment{
		ID: "att-1", MessageID: "m-1", MessageTimestamp: testNow,
		MediaType: models.TypeImage, StoragePath: "media/org-1/att-1/photo.jpg",
		ThumbnailPath: "media/org-1/att-1/photo.jpg.thumb.jpg",
		DownloadStatus: models.DownloadCompleted,
	})

	if err := f.svc.Delete(ctx, testOrg, msg.Key(), "agent-1"); err != nil {
		t.Fatal(err)
	}
	if len(f.blobs.deleted) != 2 {
		t.Fatalf("blob deletes: %v", f.blobs.deleted)
	}
	if _, err := f.mem.FindByMessage(ctx, testOrg, "m-1"); !apperr.IsNotFound(err) {
		t.Fatal("attachment row not removed")
	}
}

func TestMarkAllAsRead(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)
	agent := "agent-1"
	chat.AssignedTo = &agent
	chat.UnreadCount = 2
	_ = f.mem.Replace(ctx, testOrg, chat)

	for i, id := range []string{"m-1", "m-2"} {
		msg := &models.Message{
			ID: id, Timestamp: testNow.Add(time.Duration(i) * time.Second),
			ChatID: chat.ID, ChatCreatedAt: chat.CreatedAt,
			Sender: models.SenderContact, Type: models.TypeText, Content: "hi",
			Status: models.StatusReceived,
		}
		_ = f.mem.InsertMessage(ctx, testOrg, msg)
		_ = f.mem.SetLastMessage(ctx, testOrg, chat.Key(), msg.AsLastMessage())
	}

	if err := f.svc.MarkAllAsRead(ctx, testOrg, chat.Key(), agent); err != nil {
		t.Fatal(err)
	}

	for _, msg := range f.mem.MessagesByChat(testOrg, chat.ID) {
		if msg.Status != models.StatusRead {
			t.Fatalf("message %s status %q", msg.ID, msg.Status)
		}
	}
	chatAfter, _ := f.mem.FindByKey(ctx, testOrg, chat.Key())
	if chatAfter.UnreadCount != 0 {
		t.Fatalf("unread %d", chatAfter.UnreadCount)
	}
	if chatAfter.LastMessage.Status != models.StatusRead {
		t.Fatalf("tip status %q", chatAfter.LastMessage.Status)
	}
	part, _ := f.mem.Get(ctx, testOrg, chat.Key(), agent)
	if part.UnreadCount != 0 || part.LastReadAt == nil {
		t.Fatalf("participant: %+v", part)
	}
	if len(f.pub.messagesUpdated) != 2 {
		t.Fatalf("updated events: %d", len(f.pub.messagesUpdated))
	}
}

func TestMarkAllAsReadPromotesOtherAgentTip(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)

	other := "agent-2"
	tip := &models.Message{
		ID: "m-1", Timestamp: testNow, ChatID: chat.ID, ChatCreatedAt: chat.CreatedAt,
		Sender: models.SenderAgent, SenderID: &other, Type: models.TypeText,
		Content: "from the other agent", Status: models.StatusSent,
	}
	_ = f.mem.InsertMessage(ctx, testOrg, tip)
	_ = f.mem.SetLastMessage(ctx, testOrg, chat.Key(), tip.AsLastMessage())

	if err := f.svc.MarkAllAsRead(ctx, testOrg, chat.Key(), "agent-1"); err != nil {
		t.Fatal(err)
	}

	stored, _ := f.mem.FindMessageByKey(ctx, testOrg, tip.Key())
	if stored.Status != models.StatusRead {
		t.Fatalf("row status %q", stored.Status)
	}
	chatAfter, _ := f.mem.FindByKey(ctx, testOrg, chat.Key())
	if chatAfter.LastMessage.Status != models.StatusRead {
		t.Fatalf("tip status %q lags behind the row", chatAfter.LastMessage.Status)
	}
}

func TestMarkAllAsReadSkipsOwnTip(t *testing.T) {
	f := newMessageFixture()
	ctx := context.Background()
	chat := seedChat(f.mem, "chat-1", models.ChatOpen)

	self := "agent-1"
	tip := &models.Message{
		ID: "m-1", Timestamp: testNow, ChatID: chat.ID, ChatCreatedAt: chat.CreatedAt,
		Sender: models.SenderAgent, SenderID: &self, Type: models.TypeText,
		Content: "my own message", Status: models.StatusSent,
	}
	_ = f.mem.InsertMessage(ctx, testOrg, tip)
	_ = f.mem.SetLastMessage(ctx, testOrg, chat.Key(), tip.AsLastMessage())

	if err := f.svc.MarkAllAsRead(ctx, testOrg, chat.Key(), self); err != nil {
		t.Fatal(err)
	}

	chatAfter, _ := f.mem.FindByKey(ctx, testOrg, chat.Key())
	if chatAfter.LastMessage.Status != models.StatusSent {
		t.Fatalf("own tip must keep its status, got %q", chatAfter.LastMessage.Status)
	}
}
