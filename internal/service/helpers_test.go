package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
	"github.com/solusinc/manylead-cloud-sub003/internal/whatsapp"
)

const testOrg = "org-1"

var testNow = time.Date(2025, 6, 1, 14, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	events.Nop
	messagesCreated []models.Message
	messagesUpdated []models.Message
	messagesDeleted []models.Message
	chatsUpdated    []models.Chat
}

func (r *recordingPublisher) MessageCreated(_ context.Context, _ string, msg *models.Message, _ events.Context) error {
	r.messagesCreated = append(r.messagesCreated, *msg)
	return nil
}

func (r *recordingPublisher) MessageUpdated(_ context.Context, _ string, msg *models.Message, _ events.Context) error {
	r.messagesUpdated = append(r.messagesUpdated, *msg)
	return nil
}

func (r *recordingPublisher) MessageDeleted(_ context.Context, _ string, msg *models.Message, _ events.Context) error {
	r.messagesDeleted = append(r.messagesDeleted, *msg)
	return nil
}

func (r *recordingPublisher) ChatUpdated(_ context.Context, _ string, chat *models.Chat, _ events.Context) error {
	r.chatsUpdated = append(r.chatsUpdated, *chat)
	return nil
}

type fakeSender struct {
	fail      bool
	sent      []string
	media     []whatsapp.MediaPayload
	edited    []string
	deleted   []string
	nextWaID  string
	lastPhone string
}

func (f *fakeSender) SendText(_ context.Context, _, phone, text string) (*whatsapp.SendResult, error) {
	if f.fail {
		return nil, errors.New("gateway down")
	}
	f.sent = append(f.sent, text)
	f.lastPhone = phone
	var res whatsapp.SendResult
	res.Key.ID = f.nextWaID
	if res.Key.ID == "" {
		res.Key.ID = "wa-out-1"
	}
	return &res, nil
}

func (f *fakeSender) SendMedia(_ context.Context, _, phone string, media whatsapp.MediaPayload) (*whatsapp.SendResult, error) {
	if f.fail {
		return nil, errors.New("gateway down")
	}
	f.media = append(f.media, media)
	f.lastPhone = phone
	var res whatsapp.SendResult
	res.Key.ID = "wa-media-1"
	return &res, nil
}

func (f *fakeSender) EditMessage(_ context.Context, _, _, waMessageID, _ string) error {
	if f.fail {
		return errors.New("gateway down")
	}
	f.edited = append(f.edited, waMessageID)
	return nil
}

func (f *fakeSender) DeleteMessage(_ context.Context, _, _, waMessageID string) error {
	if f.fail {
		return errors.New("gateway down")
	}
	f.deleted = append(f.deleted, waMessageID)
	return nil
}

type recordingMirror struct {
	NopMirror
	first      int
	subsequent int
	edits      int
	deletes    int
	reads      int
}

func (m *recordingMirror) MirrorFirstMessage(context.Context, string, *models.Chat, *models.Message) error {
	m.first++
	return nil
}

func (m *recordingMirror) MirrorSubsequentMessage(context.Context, string, *models.Chat, *models.Message) error {
	m.subsequent++
	return nil
}

func (m *recordingMirror) MirrorEdit(context.Context, string, *models.Chat, *models.Message) error {
	m.edits++
	return nil
}

func (m *recordingMirror) MirrorDelete(context.Context, string, *models.Chat, *models.Message) error {
	m.deletes++
	return nil
}

func (m *recordingMirror) MirrorReadStatus(context.Context, string, *models.Chat, string) error {
	m.reads++
	return nil
}

type nopBlobs struct {
	uploaded []string
	deleted  []string
}

func (n *nopBlobs) Upload(_ context.Context, key, _ string, _ []byte) (string, error) {
	n.uploaded = append(n.uploaded, key)
	return "https://blobs.test/" + key, nil
}

func (n *nopBlobs) Delete(_ context.Context, key string) error {
	n.deleted = append(n.deleted, key)
	return nil
}

func sequentialIDs(prefix string) func() string {
	seq := 0
	return func() string { seq++; return fmt.Sprintf("%s-%d", prefix, seq) }
}

func seedChat(mem *repository.Memory, id string, status models.ChatStatus) *models.Chat {
	channel := "inst-1"
	chat := &models.Chat{
		ID:            id,
		CreatedAt:     testNow.Add(-time.Hour),
		Status:        status,
		MessageSource: models.SourceWhatsApp,
		ContactID:     "contact-1",
		ChannelID:     &channel,
	}
	_ = mem.Insert(context.Background(), testOrg, chat)
	_ = mem.InsertContact(context.Background(), testOrg, &models.Contact{
		ID: "contact-1", Phone: "5511999999999", Name: "Maria",
	})
	return chat
}
