// Package mirror propagates internal chats across organization boundaries.
// The same store instances serve both sides; only the organization id
// changes, so the target writes land in the peer's database.
package mirror

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
	"github.com/solusinc/manylead-cloud-sub003/internal/service"
)

var _ service.Mirror = (*Service)(nil)

// Service implements cross-org propagation. Every entry point is idempotent
// with respect to the source message id carried in metadata; replays resolve
// to the already-mirrored row and return nil.
type Service struct {
	chats        repository.ChatStore
	messages     repository.MessageStore
	contacts     repository.ContactStore
	participants repository.ParticipantStore
	org          repository.OrgStore
	links        repository.LinkStore
	events       events.Publisher
	log          *zap.Logger
	now          func() time.Time
	newID        func() string
}

func New(
	chats repository.ChatStore,
	messages repository.MessageStore,
	contacts repository.ContactStore,
	participants repository.ParticipantStore,
	org repository.OrgStore,
	links repository.LinkStore,
	pub events.Publisher,
	log *zap.Logger,
) *Service {
	return &Service{
		chats:        chats,
		messages:     messages,
		contacts:     contacts,
		participants: participants,
		org:          org,
		links:        links,
		events:       pub,
		log:          log,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// route is a direction-resolved view of a ChatLink: remote is the side that
// receives the propagation, regardless of which side of the link the caller
// is on.
type route struct {
	link      *models.ChatLink
	remoteOrg string
	remoteKey models.ChatKey
}

// routeFor resolves the link touching the caller's chat from either side. A
// chat provisioned by the mirror sits on the target side of its link, so its
// outbound activity routes back to the source chat.
func (s *Service) routeFor(ctx context.Context, orgID, chatID string) (*route, error) {
	link, err := s.links.LinkBySourceChat(ctx, orgID, chatID)
	if err == nil {
		return &route{
			link:      link,
			remoteOrg: link.TargetOrgID,
			remoteKey: models.ChatKey{ID: link.TargetChatID, CreatedAt: link.TargetChatCreatedAt},
		}, nil
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}
	link, err = s.links.LinkByTargetChat(ctx, orgID, chatID)
	if err != nil {
		return nil, err
	}
	return &route{
		link:      link,
		remoteOrg: link.SourceOrgID,
		remoteKey: models.ChatKey{ID: link.SourceChatID, CreatedAt: link.SourceChatCreatedAt},
	}, nil
}

// MirrorFirstMessage provisions the target-side chat, contact and link, then
// delivers the message. Safe to call again for the same chat: an existing
// link short-circuits provisioning.
func (s *Service) MirrorFirstMessage(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message) error {
	peer, err := s.links.PeerOf(ctx, orgID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return err
	}
	rt, err := s.routeFor(ctx, orgID, chat.ID)
	if err != nil {
		if !apperr.IsNotFound(err) {
			return err
		}
		rt, err = s.provision(ctx, orgID, peer.PeerOrgID, chat)
		if err != nil {
			return err
		}
	}
	return s.deliver(ctx, orgID, rt, msg)
}

// MirrorSubsequentMessage delivers onto an already-linked chat. A missing
// link falls back to the first-message path so a lost provision heals itself.
func (s *Service) MirrorSubsequentMessage(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message) error {
	rt, err := s.routeFor(ctx, orgID, chat.ID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return s.MirrorFirstMessage(ctx, orgID, chat, msg)
		}
		return err
	}
	return s.deliver(ctx, orgID, rt, msg)
}

func (s *Service) MirrorEdit(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message) error {
	rt, target, err := s.counterpart(ctx, orgID, chat.ID, msg.ID)
	if err != nil || target == nil {
		return err
	}
	target.Content = msg.Content
	target.IsEdited = true
	target.EditedAt = msg.EditedAt
	if err := s.messages.Replace(ctx, rt.remoteOrg, target); err != nil {
		return err
	}
	s.syncTip(ctx, rt, target)
	_ = s.events.MessageUpdated(ctx, rt.remoteOrg, target, events.Context{})
	return nil
}

func (s *Service) MirrorDelete(ctx context.Context, orgID string, chat *models.Chat, msg *models.Message) error {
	rt, target, err := s.counterpart(ctx, orgID, chat.ID, msg.ID)
	if err != nil || target == nil {
		return err
	}
	if target.IsDeleted {
		return nil
	}
	wasUnread := target.Status != models.StatusRead
	target.IsDeleted = true
	target.Content = msg.Content
	if err := s.messages.Replace(ctx, rt.remoteOrg, target); err != nil {
		return err
	}
	if wasUnread {
		if err := s.chats.IncrementUnread(ctx, rt.remoteOrg, rt.remoteKey, -1); err != nil {
			return err
		}
	}
	s.syncTip(ctx, rt, target)
	_ = s.events.MessageDeleted(ctx, rt.remoteOrg, target, events.Context{})
	return nil
}

// MirrorReadStatus surfaces the reading agent's receipt on the peer side as a
// delivered-to-read promotion of the chat tip.
func (s *Service) MirrorReadStatus(ctx context.Context, orgID string, chat *models.Chat, agentID string) error {
	rt, err := s.routeFor(ctx, orgID, chat.ID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil
		}
		return err
	}
	remote, err := s.chats.FindByKey(ctx, rt.remoteOrg, rt.remoteKey)
	if err != nil {
		return err
	}
	if remote.At == nil || remote.Sender != models.SenderAgent || remote.LastMessage.Status == models.StatusRead {
		return nil
	}
	remote.LastMessage.Status = models.StatusRead
	if err := s.chats.SetLastMessage(ctx, rt.remoteOrg, rt.remoteKey, remote.LastMessage); err != nil {
		return err
	}
	_ = s.events.ChatUpdated(ctx, rt.remoteOrg, remote, events.Context{})
	return nil
}

// provision creates the target-side contact and chat and records the link.
// The contact impersonates the initiating agent, so the peer org sees a
// normal inbound conversation.
func (s *Service) provision(ctx context.Context, sourceOrgID, targetOrgID string, chat *models.Chat) (*route, error) {
	initiator := ""
	name := "Unknown"
	if chat.InitiatorAgentID != nil {
		initiator = *chat.InitiatorAgentID
		if agent, err := s.org.AgentByID(ctx, sourceOrgID, initiator); err == nil {
			name = agent.Name
		}
	}
	now := s.now().UTC()
	contact := &models.Contact{
		ID:        s.newID(),
		Name:      name,
		CreatedAt: now,
	}
	if err := s.contacts.Insert(ctx, targetOrgID, contact); err != nil {
		return nil, err
	}
	target := &models.Chat{
		ID:            s.newID(),
		CreatedAt:     now,
		Status:        models.ChatPending,
		MessageSource: models.SourceInternal,
		ContactID:     contact.ID,
	}
	// The initiator stamp keeps the provisioned chat eligible for mirroring,
	// so replies written on this side propagate back to the source chat.
	if initiator != "" {
		target.InitiatorAgentID = &initiator
	}
	if err := s.chats.Insert(ctx, targetOrgID, target); err != nil {
		return nil, err
	}
	link := &models.ChatLink{
		SourceOrgID:         sourceOrgID,
		SourceChatID:        chat.ID,
		SourceChatCreatedAt: chat.CreatedAt,
		TargetOrgID:         targetOrgID,
		TargetChatID:        target.ID,
		TargetChatCreatedAt: target.CreatedAt,
		TargetContactID:     contact.ID,
		InitiatorAgentID:    initiator,
		CreatedAt:           now,
	}
	if err := s.links.InsertLink(ctx, link); err != nil {
		return nil, err
	}
	_ = s.events.ChatCreated(ctx, targetOrgID, target, events.Context{})
	return &route{
		link:      link,
		remoteOrg: targetOrgID,
		remoteKey: models.ChatKey{ID: target.ID, CreatedAt: target.CreatedAt},
	}, nil
}

// deliver inserts the mirrored copy on the remote side. The originating
// message id in metadata is the idempotency key.
func (s *Service) deliver(ctx context.Context, localOrgID string, rt *route, msg *models.Message) error {
	existing, err := s.messages.FindBySourceID(ctx, rt.remoteOrg, rt.remoteKey.ID, msg.ID)
	if err == nil && existing != nil {
		return nil
	}
	if err != nil && !apperr.IsNotFound(err) {
		return err
	}

	mirrored := &models.Message{
		ID:            s.newID(),
		Timestamp:     msg.Timestamp,
		ChatID:        rt.remoteKey.ID,
		ChatCreatedAt: rt.remoteKey.CreatedAt,
		Sender:        models.SenderContact,
		Type:          msg.Type,
		Content:       msg.Content,
		Status:        models.StatusReceived,
		Metadata: map[string]any{
			models.MetaSourceMessageID: msg.ID,
			models.MetaSourceOrgID:     localOrgID,
		},
	}
	if err := s.messages.Insert(ctx, rt.remoteOrg, mirrored); err != nil {
		return err
	}
	if err := s.chats.SetLastMessage(ctx, rt.remoteOrg, rt.remoteKey, mirrored.AsLastMessage()); err != nil {
		return err
	}
	if err := s.chats.IncrementUnread(ctx, rt.remoteOrg, rt.remoteKey, 1); err != nil {
		return err
	}
	if err := s.chats.IncrementTotalMessages(ctx, rt.remoteOrg, rt.remoteKey, 1); err != nil {
		return err
	}
	if remote, err := s.chats.FindByKey(ctx, rt.remoteOrg, rt.remoteKey); err == nil && remote.AssignedTo != nil {
		if err := s.participants.IncrementUnread(ctx, rt.remoteOrg, rt.remoteKey, *remote.AssignedTo, 1); err != nil {
			return err
		}
	}
	_ = s.events.MessageCreated(ctx, rt.remoteOrg, mirrored, events.Context{})
	return nil
}

// counterpart resolves the remote-side copy of a local message. A nil message
// with nil error means the chat is unlinked or the message was never
// mirrored; callers treat that as a no-op.
func (s *Service) counterpart(ctx context.Context, orgID, chatID, messageID string) (*route, *models.Message, error) {
	rt, err := s.routeFor(ctx, orgID, chatID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	target, err := s.messages.FindBySourceID(ctx, rt.remoteOrg, rt.remoteKey.ID, messageID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return rt, nil, nil
		}
		return nil, nil, err
	}
	return rt, target, nil
}

func (s *Service) syncTip(ctx context.Context, rt *route, target *models.Message) {
	chat, err := s.chats.FindByKey(ctx, rt.remoteOrg, rt.remoteKey)
	if err != nil {
		return
	}
	if chat.At != nil && chat.At.Equal(target.Timestamp) {
		_ = s.chats.SetLastMessage(ctx, rt.remoteOrg, rt.remoteKey, target.AsLastMessage())
	}
}
