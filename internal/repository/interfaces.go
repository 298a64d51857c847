package repository

import (
	"context"
	"time"

	"github.com/solusinc/manylead-cloud-sub003/internal/models"
)

// Stores take the organization id on every call; implementations resolve the
// tenant database per call through the connection manager. No mutable state
// is shared across tenants.

type ChatStore interface {
	Insert(ctx context.Context, orgID string, c *models.Chat) error
	FindByKey(ctx context.Context, orgID string, key models.ChatKey) (*models.Chat, error)
	// FindActiveByContact returns the most recently created chat for
	// (contact, channel) with status open or pending, or ErrNotFound.
	FindActiveByContact(ctx context.Context, orgID, contactID string, channelID *string) (*models.Chat, error)
	Replace(ctx context.Context, orgID string, c *models.Chat) error
	// IncrementUnread adjusts unreadCount by delta, flooring at zero.
	IncrementUnread(ctx context.Context, orgID string, key models.ChatKey, delta int) error
	IncrementTotalMessages(ctx context.Context, orgID string, key models.ChatKey, delta int64) error
	SetLastMessage(ctx context.Context, orgID string, key models.ChatKey, lm models.LastMessage) error
}

type MessageStore interface {
	Insert(ctx context.Context, orgID string, m *models.Message) error
	FindByKey(ctx context.Context, orgID string, key models.MessageKey) (*models.Message, error)
	// FindByID resolves a message inside a chat by id alone, for callers
	// that do not carry the key timestamp.
	FindByID(ctx context.Context, orgID, chatID, id string) (*models.Message, error)
	ExistsByWhatsappID(ctx context.Context, orgID, waMessageID string) (bool, error)
	FindByWhatsappID(ctx context.Context, orgID, chatID, waMessageID string) (*models.Message, error)
	CountNonSystem(ctx context.Context, orgID, chatID string) (int64, error)
	FirstNonSystem(ctx context.Context, orgID, chatID string) (*models.Message, error)
	Replace(ctx context.Context, orgID string, m *models.Message) error
	// MarkAllRead flips every non-read message in the chat not authored by
	// agentID to read and returns the updated rows.
	MarkAllRead(ctx context.Context, orgID, chatID, agentID string) ([]models.Message, error)
	// FindBySourceID looks a mirrored message up by its source-side id
	// carried in metadata; used for mirror idempotency.
	FindBySourceID(ctx context.Context, orgID, chatID, sourceMessageID string) (*models.Message, error)
}

type AttachmentStore interface {
	Insert(ctx context.Context, orgID string, a *models.Attachment) error
	FindByID(ctx context.Context, orgID, id string) (*models.Attachment, error)
	FindByMessage(ctx context.Context, orgID, messageID string) (*models.Attachment, error)
	Replace(ctx context.Context, orgID string, a *models.Attachment) error
	DeleteByMessage(ctx context.Context, orgID, messageID string) error
}

type ScheduledStore interface {
	Insert(ctx context.Context, orgID string, s *models.ScheduledMessage) error
	FindByID(ctx context.Context, orgID, id string) (*models.ScheduledMessage, error)
	Replace(ctx context.Context, orgID string, s *models.ScheduledMessage) error
	FindDue(ctx context.Context, orgID string, now time.Time, limit int) ([]models.ScheduledMessage, error)
	FindPendingByChat(ctx context.Context, orgID, chatID string) ([]models.ScheduledMessage, error)
}

type ParticipantStore interface {
	Get(ctx context.Context, orgID string, key models.ChatKey, agentID string) (*models.ChatParticipant, error)
	Upsert(ctx context.Context, orgID string, p *models.ChatParticipant) error
	// IncrementUnread bumps the participant's counter, creating the row
	// lazily when absent.
	IncrementUnread(ctx context.Context, orgID string, key models.ChatKey, agentID string, delta int) error
	// Reset zeroes the counter and stamps lastReadAt.
	Reset(ctx context.Context, orgID string, key models.ChatKey, agentID string, at time.Time) error
}

type ContactStore interface {
	Insert(ctx context.Context, orgID string, c *models.Contact) error
	FindByID(ctx context.Context, orgID, id string) (*models.Contact, error)
	FindByPhone(ctx context.Context, orgID, phone string) (*models.Contact, error)
	UpdateName(ctx context.Context, orgID, id, name string) error
}

// OrgStore serves per-tenant configuration rows.
type OrgStore interface {
	AgentByID(ctx context.Context, orgID, id string) (*models.Agent, error)
	DepartmentByID(ctx context.Context, orgID, id string) (*models.Department, error)
	EndingByID(ctx context.Context, orgID, id string) (*models.Ending, error)
	QuickReplyByID(ctx context.Context, orgID, id string) (*models.QuickReply, error)
	Settings(ctx context.Context, orgID string) (*models.OrgSettings, error)
}

// LinkStore lives in the control-plane database and holds the cross-org
// correlation records.
type LinkStore interface {
	InsertLink(ctx context.Context, l *models.ChatLink) error
	LinkBySourceChat(ctx context.Context, sourceOrgID, sourceChatID string) (*models.ChatLink, error)
	LinkByTargetChat(ctx context.Context, targetOrgID, targetChatID string) (*models.ChatLink, error)
	PeerOf(ctx context.Context, orgID string) (*models.OrgPeer, error)
}

// Registry enumerates tenants for cross-org workers.
type Registry interface {
	ListOrganizations(ctx context.Context) ([]models.Organization, error)
}

// InstanceResolver maps a gateway instance identifier to its owning
// organization. Webhook routing depends on it.
type InstanceResolver interface {
	OrgByInstance(ctx context.Context, instance string) (string, error)
}
