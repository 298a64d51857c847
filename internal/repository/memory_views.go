package repository

import (
	"context"
	"time"

	"github.com/solusinc/manylead-cloud-sub003/internal/models"
)

// Typed views over Memory. Each store interface shares method names
// (Insert, FindByID) that cannot coexist on one receiver, so the per-entity
// views delegate to the entity-suffixed methods.

func (m *Memory) Chats() ChatStore               { return m }
func (m *Memory) Messages() MessageStore         { return memoryMessages{m} }
func (m *Memory) Attachments() AttachmentStore   { return memoryAttachments{m} }
func (m *Memory) Scheduled() ScheduledStore      { return memoryScheduled{m} }
func (m *Memory) Participants() ParticipantStore { return memoryParticipants{m} }
func (m *Memory) Contacts() ContactStore         { return memoryContacts{m} }

type memoryMessages struct{ m *Memory }

func (v memoryMessages) Insert(ctx context.Context, org string, msg *models.Message) error {
	return v.m.InsertMessage(ctx, org, msg)
}

func (v memoryMessages) FindByKey(ctx context.Context, org string, key models.MessageKey) (*models.Message, error) {
	return v.m.FindMessageByKey(ctx, org, key)
}

func (v memoryMessages) FindByID(ctx context.Context, org, chatID, id string) (*models.Message, error) {
	return v.m.FindMessageByID(ctx, org, chatID, id)
}

func (v memoryMessages) ExistsByWhatsappID(ctx context.Context, org, waID string) (bool, error) {
	return v.m.ExistsByWhatsappID(ctx, org, waID)
}

func (v memoryMessages) FindByWhatsappID(ctx context.Context, org, chatID, waID string) (*models.Message, error) {
	return v.m.FindByWhatsappID(ctx, org, chatID, waID)
}

func (v memoryMessages) CountNonSystem(ctx context.Context, org, chatID string) (int64, error) {
	return v.m.CountNonSystem(ctx, org, chatID)
}

func (v memoryMessages) FirstNonSystem(ctx context.Context, org, chatID string) (*models.Message, error) {
	return v.m.FirstNonSystem(ctx, org, chatID)
}

func (v memoryMessages) Replace(ctx context.Context, org string, msg *models.Message) error {
	return v.m.ReplaceMessage(ctx, org, msg)
}

func (v memoryMessages) MarkAllRead(ctx context.Context, org, chatID, agentID string) ([]models.Message, error) {
	return v.m.MarkAllRead(ctx, org, chatID, agentID)
}

func (v memoryMessages) FindBySourceID(ctx context.Context, org, chatID, sourceID string) (*models.Message, error) {
	return v.m.FindBySourceID(ctx, org, chatID, sourceID)
}

type memoryAttachments struct{ m *Memory }

func (v memoryAttachments) Insert(ctx context.Context, org string, a *models.Attachment) error {
	return v.m.InsertAttachment(ctx, org, a)
}

func (v memoryAttachments) FindByID(ctx context.Context, org, id string) (*models.Attachment, error) {
	return v.m.FindAttachmentByID(ctx, org, id)
}

func (v memoryAttachments) FindByMessage(ctx context.Context, org, messageID string) (*models.Attachment, error) {
	return v.m.FindByMessage(ctx, org, messageID)
}

func (v memoryAttachments) Replace(ctx context.Context, org string, a *models.Attachment) error {
	return v.m.ReplaceAttachment(ctx, org, a)
}

func (v memoryAttachments) DeleteByMessage(ctx context.Context, org, messageID string) error {
	return v.m.DeleteByMessage(ctx, org, messageID)
}

type memoryScheduled struct{ m *Memory }

func (v memoryScheduled) Insert(ctx context.Context, org string, s *models.ScheduledMessage) error {
	return v.m.InsertScheduled(ctx, org, s)
}

func (v memoryScheduled) FindByID(ctx context.Context, org, id string) (*models.ScheduledMessage, error) {
	return v.m.FindScheduledByID(ctx, org, id)
}

func (v memoryScheduled) Replace(ctx context.Context, org string, s *models.ScheduledMessage) error {
	return v.m.ReplaceScheduled(ctx, org, s)
}

func (v memoryScheduled) FindDue(ctx context.Context, org string, now time.Time, limit int) ([]models.ScheduledMessage, error) {
	return v.m.FindDue(ctx, org, now, limit)
}

func (v memoryScheduled) FindPendingByChat(ctx context.Context, org, chatID string) ([]models.ScheduledMessage, error) {
	return v.m.FindPendingByChat(ctx, org, chatID)
}

type memoryParticipants struct{ m *Memory }

func (v memoryParticipants) Get(ctx context.Context, org string, key models.ChatKey, agentID string) (*models.ChatParticipant, error) {
	return v.m.Get(ctx, org, key, agentID)
}

func (v memoryParticipants) Upsert(ctx context.Context, org string, p *models.ChatParticipant) error {
	return v.m.Upsert(ctx, org, p)
}

func (v memoryParticipants) IncrementUnread(ctx context.Context, org string, key models.ChatKey, agentID string, delta int) error {
	return v.m.IncrementParticipantUnread(ctx, org, key, agentID, delta)
}

func (v memoryParticipants) Reset(ctx context.Context, org string, key models.ChatKey, agentID string, at time.Time) error {
	return v.m.Reset(ctx, org, key, agentID, at)
}

type memoryContacts struct{ m *Memory }

func (v memoryContacts) Insert(ctx context.Context, org string, c *models.Contact) error {
	return v.m.InsertContact(ctx, org, c)
}

func (v memoryContacts) FindByID(ctx context.Context, org, id string) (*models.Contact, error) {
	return v.m.FindContactByID(ctx, org, id)
}

func (v memoryContacts) FindByPhone(ctx context.Context, org, phone string) (*models.Contact, error) {
	return v.m.FindByPhone(ctx, org, phone)
}

func (v memoryContacts) UpdateName(ctx context.Context, org, id, name string) error {
	return v.m.UpdateName(ctx, org, id, name)
}

var (
	_ ChatStore        = (*Memory)(nil)
	_ OrgStore         = (*Memory)(nil)
	_ LinkStore        = (*Memory)(nil)
	_ Registry         = (*Memory)(nil)
	_ InstanceResolver = (*Memory)(nil)
	_ MessageStore     = memoryMessages{}
	_ AttachmentStore  = memoryAttachments{}
	_ ScheduledStore   = memoryScheduled{}
	_ ParticipantStore = memoryParticipants{}
	_ ContactStore     = memoryContacts{}
)
