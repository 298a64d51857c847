// Package processor turns raw webhook deliveries into persisted chats and
// messages. One Process call per gateway message; replays are absorbed by the
// per-org whatsapp message id.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/extractor"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/queue"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
	"github.com/solusinc/manylead-cloud-sub003/internal/service"
	"github.com/solusinc/manylead-cloud-sub003/internal/whatsapp"
)

// ProfileFetcher resolves a contact's profile picture from the gateway. The
// lookup is best effort; a failure never blocks ingestion.
type ProfileFetcher interface {
	ProfilePictureURL(ctx context.Context, instance, phone string) (string, error)
}

type Processor struct {
	chats        repository.ChatStore
	messages     repository.MessageStore
	attachments  repository.AttachmentStore
	contacts     repository.ContactStore
	participants *service.ParticipantService
	profiles     ProfileFetcher
	media        queue.MediaEnqueuer
	autoCancel   service.AutoCanceller
	events       events.Publisher
	log          *zap.Logger
	now          func() time.Time
	newID        func() string
}

func New(
	chats repository.ChatStore,
	messages repository.MessageStore,
	attachments repository.AttachmentStore,
	contacts repository.ContactStore,
	participants *service.ParticipantService,
	profiles ProfileFetcher,
	media queue.MediaEnqueuer,
	autoCancel service.AutoCanceller,
	pub events.Publisher,
	log *zap.Logger,
) *Processor {
	return &Processor{
		chats:        chats,
		messages:     messages,
		attachments:  attachments,
		contacts:     contacts,
		participants: participants,
		profiles:     profiles,
		media:        media,
		autoCancel:   autoCancel,
		events:       pub,
		log:          log,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Process ingests one webhook message for the organization owning the
// instance. Messages that fail a guard (own echo, group, unresolvable phone)
// are dropped silently; a replayed message id is a no-op.
func (p *Processor) Process(ctx context.Context, orgID, instance string, wm *whatsapp.WebhookMessage) error {
	if wm.Key.FromMe {
		return nil
	}
	if whatsapp.IsGroup(wm.Key.RemoteJid) {
		return nil
	}
	phone := whatsapp.PhoneFromJid(wm.Key.RemoteJid, wm.Key.RemoteJidAlt)
	if phone == "" {
		p.log.Debug("dropping message without resolvable phone",
			zap.String("org", orgID),
			zap.String("jid", wm.Key.RemoteJid))
		return nil
	}

	contact, err := p.resolveContact(ctx, orgID, instance, phone, wm.PushName)
	if err != nil {
		return err
	}
	chat, err := p.resolveChat(ctx, orgID, instance, contact)
	if err != nil {
		return err
	}

	if exists, err := p.messages.ExistsByWhatsappID(ctx, orgID, wm.Key.ID); err != nil {
		return err
	} else if exists {
		return nil
	}

	content := extractor.Extract(wm.Message)
	msgType := extractor.MapType(wm.MessageType)

	msg := &models.Message{
		ID:                p.newID(),
		Timestamp:         wm.Timestamp(),
		ChatID:            chat.ID,
		ChatCreatedAt:     chat.CreatedAt,
		Sender:            models.SenderContact,
		Type:              msgType,
		Content:           content.Text,
		Status:            models.StatusReceived,
		WhatsappMessageID: wm.Key.ID,
	}
	p.resolveReply(ctx, orgID, chat.ID, wm, msg)
	if content.ContactData != nil {
		if msg.Metadata == nil {
			msg.Metadata = map[string]any{}
		}
		msg.Metadata["contactCard"] = content.ContactData
	}
	if err := p.messages.Insert(ctx, orgID, msg); err != nil {
		return err
	}

	var attachment *models.Attachment
	if content.HasMedia {
		attachment, err = p.stageAttachment(ctx, orgID, instance, chat, msg, wm.Key.ID, content)
		if err != nil {
			return err
		}
	}

	if err := p.bumpAggregates(ctx, orgID, chat, msg); err != nil {
		return err
	}
	if _, err := p.autoCancel.CancelPending(ctx, orgID, chat.ID, models.CancelContactMessage); err != nil {
		p.log.Warn("auto-cancel on contact message failed", zap.String("chat", chat.ID), zap.Error(err))
	}

	// media messages stay invisible until the worker finishes the download;
	// the worker emits the created event with the attachment filled in
	if attachment == nil {
		_ = p.events.MessageCreated(ctx, orgID, msg, events.Context{SenderID: contact.ID})
	}
	return nil
}

func (p *Processor) resolveContact(ctx context.Context, orgID, instance, phone, pushName string) (*models.Contact, error) {
	contact, err := p.contacts.FindByPhone(ctx, orgID, phone)
	if err == nil {
		if pushName != "" && pushName != contact.Name {
			if err := p.contacts.UpdateName(ctx, orgID, contact.ID, pushName); err != nil {
				return nil, err
			}
			contact.Name = pushName
		}
		return contact, nil
	}

	name := pushName
	if name == "" {
		name = phone
	}
	contact = &models.Contact{
		ID:        p.newID(),
		Phone:     phone,
		Name:      name,
		CreatedAt: p.now().UTC(),
	}
	if url, perr := p.profiles.ProfilePictureURL(ctx, instance, phone); perr == nil && url != "" {
		contact.ProfilePictureURL = &url
	}
	if err := p.contacts.Insert(ctx, orgID, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

func (p *Processor) resolveChat(ctx context.Context, orgID, instance string, contact *models.Contact) (*models.Chat, error) {
	channel := instance
	chat, err := p.chats.FindActiveByContact(ctx, orgID, contact.ID, &channel)
	if err == nil {
		return chat, nil
	}

	now := p.now().UTC()
	chat = &models.Chat{
		ID:            p.newID(),
		CreatedAt:     now,
		Status:        models.ChatPending,
		MessageSource: models.SourceWhatsApp,
		ContactID:     contact.ID,
		ChannelID:     &channel,
	}
	if err := p.chats.Insert(ctx, orgID, chat); err != nil {
		return nil, err
	}
	sys := &models.Message{
		ID:            p.newID(),
		Timestamp:     now,
		ChatID:        chat.ID,
		ChatCreatedAt: chat.CreatedAt,
		Sender:        models.SenderSystem,
		Type:          models.TypeSystem,
		Content:       fmt.Sprintf("Session created at %s", now.Format("15:04")),
		Status:        models.StatusSent,
		Metadata:      map[string]any{models.MetaSystemEventType: "created"},
	}
	if err := p.messages.Insert(ctx, orgID, sys); err != nil {
		return nil, err
	}
	_ = p.events.ChatCreated(ctx, orgID, chat, events.Context{})
	return chat, nil
}

// resolveReply stitches the quoted message onto the new one. Both the pointer
// and the snapshot are best effort: a quote of a purged message inserts fine
// without them.
func (p *Processor) resolveReply(ctx context.Context, orgID, chatID string, wm *whatsapp.WebhookMessage, msg *models.Message) {
	if wm.ContextInfo == nil || wm.ContextInfo.StanzaID == "" {
		return
	}
	quoted, err := p.messages.FindByWhatsappID(ctx, orgID, chatID, wm.ContextInfo.StanzaID)
	if err != nil {
		return
	}
	msg.RepliedToMessageID = &quoted.ID
	msg.Metadata = map[string]any{
		models.MetaReplySnapshot: models.ReplySnapshot{
			Content:     quoted.Content,
			Sender:      quoted.Sender,
			MessageType: quoted.Type,
		},
	}
}

func (p *Processor) stageAttachment(ctx context.Context, orgID, instance string, chat *models.Chat, msg *models.Message, externalMediaID string, content extractor.Content) (*models.Attachment, error) {
	att := &models.Attachment{
		ID:               p.newID(),
		MessageID:        msg.ID,
		MessageTimestamp: msg.Timestamp,
		MediaType:        msg.Type,
		MimeType:         content.MimeType,
		FileName:         content.FileName,
		StoragePath:      "temp/" + externalMediaID,
		DownloadStatus:   models.DownloadPending,
		CreatedAt:        p.now().UTC(),
	}
	if err := p.attachments.Insert(ctx, orgID, att); err != nil {
		return nil, err
	}
	err := p.media.EnqueueMediaDownload(ctx, queue.MediaJob{
		OrganizationID:     orgID,
		ChatID:             chat.ID,
		ChatCreatedAt:      chat.CreatedAt,
		MessageID:          msg.ID,
		MessageTimestamp:   msg.Timestamp,
		AttachmentID:       att.ID,
		ExternalMediaID:    externalMediaID,
		InstanceIdentifier: instance,
		FileName:           content.FileName,
		MimeType:           content.MimeType,
		DirectMediaURL:     content.MediaURL,
	})
	if err != nil {
		return nil, err
	}
	return att, nil
}

func (p *Processor) bumpAggregates(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message) error {
	key := chat.Key()
	if err := p.chats.SetLastMessage(ctx, orgID, key, msg.AsLastMessage()); err != nil {
		return err
	}
	if err := p.chats.IncrementUnread(ctx, orgID, key, 1); err != nil {
		return err
	}
	if err := p.chats.IncrementTotalMessages(ctx, orgID, key, 1); err != nil {
		return err
	}
	if chat.AssignedTo != nil {
		if err := p.participants.BumpUnread(ctx, orgID, key, *chat.AssignedTo); err != nil {
			return err
		}
	}
	return nil
}
