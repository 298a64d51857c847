// Package events fans domain events out to the real-time layer. The core
// treats that layer as an external collaborator behind the Publisher
// interface.
package events

import (
	"context"

	"github.com/solusinc/manylead-cloud-sub003/internal/models"
)

// Context carries optional per-event routing hints for the real-time layer.
type Context struct {
	SenderID      string             `json:"senderId,omitempty"`
	TargetAgentID string             `json:"targetAgentId,omitempty"`
	Attachment    *models.Attachment `json:"attachment,omitempty"`
}

type Publisher interface {
	MessageCreated(ctx context.Context, orgID string, msg *models.Message, ec Context) error
	MessageUpdated(ctx context.Context, orgID string, msg *models.Message, ec Context) error
	MessageDeleted(ctx context.Context, orgID string, msg *models.Message, ec Context) error
	ChatCreated(ctx context.Context, orgID string, chat *models.Chat, ec Context) error
	ChatUpdated(ctx context.Context, orgID string, chat *models.Chat, ec Context) error
	ChatDeleted(ctx context.Context, orgID string, chat *models.Chat, ec Context) error
}

// Nop discards every event. Used in tests and as a safe default.
type Nop struct{}

func (Nop) MessageCreated(context.Context, string, *models.Message, Context) error { return nil }
func (Nop) MessageUpdated(context.Context, string, *models.Message, Context) error { return nil }
func (Nop) MessageDeleted(context.Context, string, *models.Message, Context) error { return nil }
func (Nop) ChatCreated(context.Context, string, *models.Chat, Context) error       { return nil }
func (Nop) ChatUpdated(context.Context, string, *models.Chat, Context) error       { return nil }
func (Nop) ChatDeleted(context.Context, string, *models.Chat, Context) error       { return nil }
