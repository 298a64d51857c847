package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
)

type PostCloseActionType string

const (
	PostCloseRating  PostCloseActionType = "rating"
	PostCloseClosing PostCloseActionType = "closing"
	PostCloseNone    PostCloseActionType = "none"
)

type PostCloseAction struct {
	Type    PostCloseActionType
	Message string
}

// RatingPrompt is the fixed bilingual 1-5 rating request.
const RatingPrompt = "Por favor, avalie nosso atendimento de 1 a 5. / Please rate our service from 1 to 5."

// DecidePostCloseAction resolves what happens right after a chat closes. An
// ending's explicit "enabled" always requests a rating regardless of the org
// toggle; an explicit "disabled" always sends a closing message, using the
// ending's own text when non-blank, else the org default, else nothing;
// "default" (or no ending) defers to the org toggle. Pure function.
func DecidePostCloseAction(settings *models.OrgSettings, ending *models.Ending) PostCloseAction {
	behavior := models.RatingBehaviorDefault
	if ending != nil {
		behavior = ending.RatingBehavior
	}

	switch behavior {
	case models.RatingBehaviorEnabled:
		return PostCloseAction{Type: PostCloseRating, Message: RatingPrompt}
	case models.RatingBehaviorDisabled:
		if ending != nil && strings.TrimSpace(ending.Message) != "" {
			return PostCloseAction{Type: PostCloseClosing, Message: ending.Message}
		}
		if strings.TrimSpace(settings.ClosingMessage) != "" {
			return PostCloseAction{Type: PostCloseClosing, Message: settings.ClosingMessage}
		}
		return PostCloseAction{Type: PostCloseNone}
	}

	if settings.RatingEnabled {
		return PostCloseAction{Type: PostCloseRating, Message: RatingPrompt}
	}
	if strings.TrimSpace(settings.ClosingMessage) != "" {
		return PostCloseAction{Type: PostCloseClosing, Message: settings.ClosingMessage}
	}
	return PostCloseAction{Type: PostCloseNone}
}

// PostActionsService performs the one-time post-close dispatch.
type PostActionsService struct {
	chats    repository.ChatStore
	messages repository.MessageStore
	contacts repository.ContactStore
	org      repository.OrgStore
	events   events.Publisher
	sender   Sender
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

func NewPostActionsService(
	chats repository.ChatStore,
	messages repository.MessageStore,
	contacts repository.ContactStore,
	org repository.OrgStore,
	pub events.Publisher,
	sender Sender,
	log *zap.Logger,
) *PostActionsService {
	return &PostActionsService{
		chats:    chats,
		messages: messages,
		contacts: contacts,
		org:      org,
		events:   pub,
		sender:   sender,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Dispatch runs the post-close decision and its side effect. Only WhatsApp
// chats receive prompts; cross-org internal chats never do. The rating path
// flips ratingStatus and surfaces in the chat-list preview; closing messages
// deliberately leave the aggregate untouched.
func (s *PostActionsService) Dispatch(ctx context.Context, orgID string, chat *models.Chat, ending *models.Ending) error {
	if chat.MessageSource != models.SourceWhatsApp {
		return nil
	}
	settings, err := s.org.Settings(ctx, orgID)
	if err != nil {
		return err
	}
	action := DecidePostCloseAction(settings, ending)
	if action.Type == PostCloseNone {
		return nil
	}

	msg := &models.Message{
		ID:            s.newID(),
		Timestamp:     s.now().UTC(),
		ChatID:        chat.ID,
		ChatCreatedAt: chat.CreatedAt,
		Sender:        models.SenderSystem,
		Type:          models.TypeSystem,
		Content:       action.Message,
		Status:        models.StatusSent,
		Metadata:      map[string]any{models.MetaSystemEventType: "post_close_" + string(action.Type)},
	}
	if err := s.messages.Insert(ctx, orgID, msg); err != nil {
		return err
	}
	_ = s.events.MessageCreated(ctx, orgID, msg, events.Context{})

	s.deliver(ctx, orgID, chat, action.Message)

	if action.Type == PostCloseRating {
		chat.RatingStatus = models.RatingAwaiting
		chat.LastMessage = msg.AsLastMessage()
		if err := s.chats.Replace(ctx, orgID, chat); err != nil {
			return err
		}
		_ = s.events.ChatUpdated(ctx, orgID, chat, events.Context{})
	}
	return nil
}

// deliver pushes the prompt out to the contact; failures are logged, never
// rolled back.
func (s *PostActionsService) deliver(ctx context.Context, orgID string, chat *models.Chat, text string) {
	if s.sender == nil || chat.ChannelID == nil {
		return
	}
	contact, err := s.contacts.FindByID(ctx, orgID, chat.ContactID)
	if err != nil {
		s.log.Warn("post-close contact lookup failed", zap.Error(err))
		return
	}
	if _, err := s.sender.SendText(ctx, *chat.ChannelID, contact.Phone, text); err != nil {
		s.log.Warn("post-close send failed",
			zap.String("chat", chat.ID),
			zap.Error(err))
	}
}
