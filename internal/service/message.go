package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
	"github.com/solusinc/manylead-cloud-sub003/internal/whatsapp"
)

// DeletedPlaceholder replaces the content of a soft-deleted message wherever
// the original text must no longer surface.
const DeletedPlaceholder = "This message was deleted"

// MessageService handles agent-authored message lifecycle: create, edit,
// soft delete and read receipts. Inbound contact messages arrive through the
// processor, not here.
type MessageService struct {
	chats        repository.ChatStore
	messages     repository.MessageStore
	attachments  repository.AttachmentStore
	contacts     repository.ContactStore
	org          repository.OrgStore
	participants *ParticipantService
	sender       Sender
	blobs        BlobStore
	mirror       Mirror
	policy       MirrorPolicy
	autoCancel   AutoCanceller
	events       events.Publisher
	log          *zap.Logger
	now          func() time.Time
	newID        func() string
}

func NewMessageService(
	chats repository.ChatStore,
	messages repository.MessageStore,
	attachments repository.AttachmentStore,
	contacts repository.ContactStore,
	org repository.OrgStore,
	participants *ParticipantService,
	sender Sender,
	blobs BlobStore,
	mirror Mirror,
	policy MirrorPolicy,
	autoCancel AutoCanceller,
	pub events.Publisher,
	log *zap.Logger,
) *MessageService {
	return &MessageService{
		chats:        chats,
		messages:     messages,
		attachments:  attachments,
		contacts:     contacts,
		org:          org,
		participants: participants,
		sender:       sender,
		blobs:        blobs,
		mirror:       mirror,
		policy:       policy,
		autoCancel:   autoCancel,
		events:       pub,
		log:          log,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// MediaInput is an agent-uploaded binary attached to an outbound message.
type MediaInput struct {
	FileName string
	MimeType string
	Data     []byte
}

type CreateMessageInput struct {
	AgentID            string
	Content            string
	Media              *MediaInput
	RepliedToMessageID *string
	TempID             string
}

// CreateMessage persists an agent message and, for WhatsApp-backed chats,
// relays it to the gateway. A relay failure does not fail the call; the
// message is kept with status failed and the error recorded in metadata.
func (s *MessageService) CreateMessage(ctx context.Context, orgID string, key models.ChatKey, in CreateMessageInput) (*models.Message, error) {
	if in.Content == "" && in.Media == nil {
		return nil, apperr.Validation("content must not be empty")
	}
	if in.Media != nil && len(in.Media.Data) == 0 {
		return nil, apperr.Validation("media payload must not be empty")
	}
	chat, err := s.chats.FindByKey(ctx, orgID, key)
	if err != nil {
		return nil, err
	}
	agent, err := s.org.AgentByID(ctx, orgID, in.AgentID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:                 s.newID(),
		Timestamp:          s.now().UTC(),
		ChatID:             chat.ID,
		ChatCreatedAt:      chat.CreatedAt,
		Sender:             models.SenderAgent,
		SenderID:           &agent.ID,
		Type:               models.TypeText,
		Content:            in.Content,
		Status:             models.StatusPending,
		RepliedToMessageID: in.RepliedToMessageID,
	}
	if in.TempID != "" {
		msg.Metadata = map[string]any{models.MetaTempID: in.TempID}
	}
	if in.RepliedToMessageID != nil {
		s.attachReplySnapshot(ctx, orgID, chat.ID, msg)
	}

	var att *models.Attachment
	if in.Media != nil {
		msg.Type = mediaMessageType(in.Media.MimeType)
		att, err = s.uploadMedia(ctx, orgID, msg, in.Media)
		if err != nil {
			return nil, err
		}
	}

	if chat.MessageSource == models.SourceWhatsApp {
		s.relay(ctx, orgID, chat, msg, att)
	} else {
		msg.Status = models.StatusSent
	}

	if err := s.messages.Insert(ctx, orgID, msg); err != nil {
		return nil, err
	}
	if att != nil {
		if err := s.attachments.Insert(ctx, orgID, att); err != nil {
			return nil, err
		}
	}
	if err := s.chats.SetLastMessage(ctx, orgID, key, msg.AsLastMessage()); err != nil {
		return nil, err
	}
	if err := s.chats.IncrementTotalMessages(ctx, orgID, key, 1); err != nil {
		return nil, err
	}
	if _, err := s.autoCancel.CancelPending(ctx, orgID, chat.ID, models.CancelAgentMessage); err != nil {
		s.log.Warn("auto-cancel on agent message failed", zap.String("chat", chat.ID), zap.Error(err))
	}
	_ = s.events.MessageCreated(ctx, orgID, msg, events.Context{SenderID: agent.ID, Attachment: att})

	s.mirrorCreate(ctx, orgID, chat, msg)
	return msg, nil
}

// relay pushes the message out through the gateway and stamps the resulting
// status on it before insert. Media messages go out as a gateway media send
// pointing at the already-uploaded binary.
func (s *MessageService) relay(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message, att *models.Attachment) {
	contact, err := s.contacts.FindByID(ctx, orgID, chat.ContactID)
	if err != nil {
		s.failMessage(msg, err)
		return
	}
	var res *whatsapp.SendResult
	if att != nil {
		res, err = s.sender.SendMedia(ctx, instanceOf(chat), contact.Phone, whatsapp.MediaPayload{
			MediaType: string(att.MediaType),
			MediaURL:  att.StorageURL,
			Filename:  att.FileName,
			Caption:   msg.Content,
		})
	} else {
		res, err = s.sender.SendText(ctx, instanceOf(chat), contact.Phone, msg.Content)
	}
	if err != nil {
		s.failMessage(msg, err)
		return
	}
	msg.Status = models.StatusSent
	msg.WhatsappMessageID = res.Key.ID
}

// uploadMedia pushes the binary to durable storage and builds the completed
// attachment row for it.
func (s *MessageService) uploadMedia(ctx context.Context, orgID string, msg *models.Message, media *MediaInput) (*models.Attachment, error) {
	attID := s.newID()
	name := media.FileName
	if name == "" {
		name = attID
	}
	name = strings.ReplaceAll(name, "/", "_")
	key := fmt.Sprintf("media/%s/%s/%s", orgID, attID, name)
	url, err := s.blobs.Upload(ctx, key, media.MimeType, media.Data)
	if err != nil {
		return nil, apperr.External("upload media", err)
	}
	return &models.Attachment{
		ID:               attID,
		MessageID:        msg.ID,
		MessageTimestamp: msg.Timestamp,
		MediaType:        msg.Type,
		MimeType:         media.MimeType,
		FileName:         media.FileName,
		StoragePath:      key,
		StorageURL:       url,
		DownloadStatus:   models.DownloadCompleted,
		CreatedAt:        s.now().UTC(),
	}, nil
}

func mediaMessageType(mimeType string) models.MessageType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return models.TypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return models.TypeVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.TypeAudio
	default:
		return models.TypeDocument
	}
}

func (s *MessageService) failMessage(msg *models.Message, err error) {
	s.log.Warn("outbound relay failed", zap.String("message", msg.ID), zap.Error(err))
	msg.Status = models.StatusFailed
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	msg.Metadata[models.MetaErrorMessage] = err.Error()
}

// mirrorCreate propagates the new message to the peer org when the policy
// allows, then promotes the local copy to delivered as the cross-org receipt.
func (s *MessageService) mirrorCreate(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message) {
	if !s.policy.ShouldMirror(chat) || msg.Status == models.StatusFailed {
		return
	}
	count, err := s.messages.CountNonSystem(ctx, orgID, chat.ID)
	if err != nil {
		s.log.Warn("mirror count failed", zap.String("chat", chat.ID), zap.Error(err))
		return
	}
	if count == 1 {
		err = s.mirror.MirrorFirstMessage(ctx, orgID, chat, msg)
	} else {
		err = s.mirror.MirrorSubsequentMessage(ctx, orgID, chat, msg)
	}
	if err != nil {
		s.log.Warn("mirror failed", zap.String("message", msg.ID), zap.Error(err))
		return
	}

	msg.Status = models.StatusDelivered
	if err := s.messages.Replace(ctx, orgID, msg); err != nil {
		s.log.Warn("delivered promotion failed", zap.String("message", msg.ID), zap.Error(err))
		return
	}
	// The just-inserted message is the chat tip; re-stamp it so the
	// aggregate carries the delivered status too.
	if err := s.chats.SetLastMessage(ctx, orgID, chat.Key(), msg.AsLastMessage()); err != nil {
		s.log.Warn("tip promotion failed", zap.String("chat", chat.ID), zap.Error(err))
	}
	_ = s.events.MessageUpdated(ctx, orgID, msg, events.Context{})
}

func (s *MessageService) attachReplySnapshot(ctx context.Context, orgID, chatID string, msg *models.Message) {
	quoted, err := s.messages.FindByID(ctx, orgID, chatID, *msg.RepliedToMessageID)
	if err != nil {
		// a miss is tolerated; the reply renders without a snapshot
		return
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	msg.Metadata[models.MetaReplySnapshot] = models.ReplySnapshot{
		Content:     quoted.Content,
		Sender:      quoted.Sender,
		MessageType: quoted.Type,
	}
}

// Edit rewrites an agent message's content in place. Only the author's own
// non-deleted text messages are editable.
func (s *MessageService) Edit(ctx context.Context, orgID string, key models.MessageKey, agentID, content string) (*models.Message, error) {
	if content == "" {
		return nil, apperr.Validation("content must not be empty")
	}
	msg, err := s.messages.FindByKey(ctx, orgID, key)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, apperr.Validation("deleted messages cannot be edited")
	}
	if msg.Sender != models.SenderAgent || msg.SenderID == nil || *msg.SenderID != agentID {
		return nil, apperr.Validation("only the author can edit a message")
	}
	chat, err := s.chats.FindByKey(ctx, orgID, models.ChatKey{ID: msg.ChatID, CreatedAt: msg.ChatCreatedAt})
	if err != nil {
		return nil, err
	}

	if chat.MessageSource == models.SourceWhatsApp && msg.WhatsappMessageID != "" {
		contact, err := s.contacts.FindByID(ctx, orgID, chat.ContactID)
		if err != nil {
			return nil, err
		}
		if err := s.sender.EditMessage(ctx, instanceOf(chat), contact.Phone, msg.WhatsappMessageID, content); err != nil {
			return nil, apperr.External("edit message", err)
		}
	}

	now := s.now().UTC()
	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &now
	if err := s.messages.Replace(ctx, orgID, msg); err != nil {
		return nil, err
	}
	// keep the chat tip coherent when the edited message is the latest one
	if chat.At != nil && chat.At.Equal(msg.Timestamp) {
		if err := s.chats.SetLastMessage(ctx, orgID, chat.Key(), msg.AsLastMessage()); err != nil {
			return nil, err
		}
	}
	_ = s.events.MessageUpdated(ctx, orgID, msg, events.Context{SenderID: agentID})

	if s.policy.ShouldMirror(chat) {
		if err := s.mirror.MirrorEdit(ctx, orgID, chat, msg); err != nil {
			s.log.Warn("mirror edit failed", zap.String("message", msg.ID), zap.Error(err))
		}
	}
	return msg, nil
}

// Delete soft-deletes a message. The row stays for history with its content
// blanked; any attachment binary and row are purged for real.
func (s *MessageService) Delete(ctx context.Context, orgID string, key models.MessageKey, agentID string) error {
	msg, err := s.messages.FindByKey(ctx, orgID, key)
	if err != nil {
		return err
	}
	if msg.IsDeleted {
		return nil
	}
	chat, err := s.chats.FindByKey(ctx, orgID, models.ChatKey{ID: msg.ChatID, CreatedAt: msg.ChatCreatedAt})
	if err != nil {
		return err
	}

	if chat.MessageSource == models.SourceWhatsApp && msg.WhatsappMessageID != "" {
		contact, err := s.contacts.FindByID(ctx, orgID, chat.ContactID)
		if err != nil {
			return err
		}
		if err := s.sender.DeleteMessage(ctx, instanceOf(chat), contact.Phone, msg.WhatsappMessageID); err != nil {
			return apperr.External("delete message", err)
		}
	}

	s.purgeAttachment(ctx, orgID, msg.ID)

	wasUnread := msg.Sender == models.SenderContact && msg.Status != models.StatusRead

	msg.IsDeleted = true
	msg.Content = DeletedPlaceholder
	msg.Metadata = nil
	if err := s.messages.Replace(ctx, orgID, msg); err != nil {
		return err
	}
	if wasUnread {
		if err := s.chats.IncrementUnread(ctx, orgID, chat.Key(), -1); err != nil {
			return err
		}
	}
	if chat.At != nil && chat.At.Equal(msg.Timestamp) {
		if err := s.chats.SetLastMessage(ctx, orgID, chat.Key(), msg.AsLastMessage()); err != nil {
			return err
		}
	}
	_ = s.events.MessageDeleted(ctx, orgID, msg, events.Context{SenderID: agentID})

	if s.policy.ShouldMirror(chat) {
		if err := s.mirror.MirrorDelete(ctx, orgID, chat, msg); err != nil {
			s.log.Warn("mirror delete failed", zap.String("message", msg.ID), zap.Error(err))
		}
	}
	return nil
}

// MarkAllAsRead flips every foreign message in the chat to read, zeroes both
// the chat-level and the agent's counters and pushes the receipt cross-org.
func (s *MessageService) MarkAllAsRead(ctx context.Context, orgID string, key models.ChatKey, agentID string) error {
	chat, err := s.chats.FindByKey(ctx, orgID, key)
	if err != nil {
		return err
	}
	updated, err := s.messages.MarkAllRead(ctx, orgID, chat.ID, agentID)
	if err != nil {
		return err
	}
	if chat.UnreadCount != 0 {
		if err := s.chats.IncrementUnread(ctx, orgID, key, -chat.UnreadCount); err != nil {
			return err
		}
		chat.UnreadCount = 0
	}
	if err := s.participants.MarkRead(ctx, orgID, key, agentID); err != nil {
		return err
	}
	// The tip follows the store sweep: if the row holding the chat tip was
	// among the flipped messages, the aggregate reads as read too. Matching
	// on the flipped rows covers tips authored by other agents, which the
	// sender kind on the aggregate alone would miss.
	if chat.At != nil {
		for i := range updated {
			if updated[i].Timestamp.Equal(*chat.At) {
				chat.LastMessage.Status = models.StatusRead
				if err := s.chats.SetLastMessage(ctx, orgID, key, chat.LastMessage); err != nil {
					return err
				}
				break
			}
		}
	}
	for i := range updated {
		_ = s.events.MessageUpdated(ctx, orgID, &updated[i], events.Context{})
	}
	_ = s.events.ChatUpdated(ctx, orgID, chat, events.Context{TargetAgentID: agentID})

	if s.policy.ShouldMirror(chat) {
		if err := s.mirror.MirrorReadStatus(ctx, orgID, chat, agentID); err != nil {
			s.log.Warn("mirror read status failed", zap.String("chat", chat.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *MessageService) purgeAttachment(ctx context.Context, orgID, messageID string) {
	att, err := s.attachments.FindByMessage(ctx, orgID, messageID)
	if err != nil {
		if !apperr.IsNotFound(err) {
			s.log.Warn("attachment lookup failed", zap.String("message", messageID), zap.Error(err))
		}
		return
	}
	if att.StoragePath != "" {
		if err := s.blobs.Delete(ctx, att.StoragePath); err != nil {
			s.log.Warn("blob delete failed", zap.String("key", att.StoragePath), zap.Error(err))
		}
	}
	if att.ThumbnailPath != "" {
		if err := s.blobs.Delete(ctx, att.ThumbnailPath); err != nil {
			s.log.Warn("blob delete failed", zap.String("key", att.ThumbnailPath), zap.Error(err))
		}
	}
	if err := s.attachments.DeleteByMessage(ctx, orgID, messageID); err != nil {
		s.log.Warn("attachment row delete failed", zap.String("message", messageID), zap.Error(err))
	}
}

// instanceOf maps a chat onto the gateway instance its channel rides on.
func instanceOf(chat *models.Chat) string {
	if chat.ChannelID != nil {
		return *chat.ChannelID
	}
	return ""
}

var _ Sender = (*whatsapp.Client)(nil)
