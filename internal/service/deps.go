package service

import (
	"context"

	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/whatsapp"
)

// Sender is the outbound WhatsApp surface the services need.
type Sender interface {
	SendText(ctx context.Context, instance, phone, text string) (*whatsapp.SendResult, error)
	SendMedia(ctx context.Context, instance, phone string, media whatsapp.MediaPayload) (*whatsapp.SendResult, error)
	EditMessage(ctx context.Context, instance, phone, waMessageID, text string) error
	DeleteMessage(ctx context.Context, instance, phone, waMessageID string) error
}

// Mirror propagates chat activity to the linked organization. Every call is
// idempotent with respect to the source message id; replays must not
// duplicate the mirrored side.
type Mirror interface {
	MirrorFirstMessage(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message) error
	MirrorSubsequentMessage(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message) error
	MirrorEdit(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message) error
	MirrorDelete(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message) error
	MirrorReadStatus(ctx context.Context, orgID string, chat *models.Chat, agentID string) error
}

// MirrorPolicy decides whether a chat's activity propagates cross-org. The
// decision rule is pluggable; DefaultMirrorPolicy is the product default.
type MirrorPolicy interface {
	ShouldMirror(chat *models.Chat) bool
}

type DefaultMirrorPolicy struct{}

func (DefaultMirrorPolicy) ShouldMirror(chat *models.Chat) bool {
	return chat.MessageSource == models.SourceInternal && chat.InitiatorAgentID != nil
}

// NopMirror ignores every call; used when an organization has no peer and in
// tests.
type NopMirror struct{}

func (NopMirror) MirrorFirstMessage(context.Context, string, *models.Chat, *models.Message) error {
	return nil
}
func (NopMirror) MirrorSubsequentMessage(context.Context, string, *models.Chat, *models.Message) error {
	return nil
}
func (NopMirror) MirrorEdit(context.Context, string, *models.Chat, *models.Message) error {
	return nil
}
func (NopMirror) MirrorDelete(context.Context, string, *models.Chat, *models.Message) error {
	return nil
}
func (NopMirror) MirrorReadStatus(context.Context, string, *models.Chat, string) error {
	return nil
}

// AutoCanceller races scheduled sends against chat activity.
type AutoCanceller interface {
	CancelPending(ctx context.Context, orgID, chatID string, reason models.CancellationReason) (int, error)
}

// BlobStore is the durable storage surface for agent media: binaries are
// uploaded on send and purged when the message is deleted.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}
