package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
)

// ScheduledService owns the scheduled-message records. Dispatch itself lives
// in the worker; this service creates, cancels and auto-cancels.
type ScheduledService struct {
	scheduled repository.ScheduledStore
	chats     repository.ChatStore
	org       repository.OrgStore
	log       *zap.Logger
	now       func() time.Time
	newID     func() string
}

func NewScheduledService(
	scheduled repository.ScheduledStore,
	chats repository.ChatStore,
	org repository.OrgStore,
	log *zap.Logger,
) *ScheduledService {
	return &ScheduledService{
		scheduled: scheduled,
		chats:     chats,
		org:       org,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

type CreateScheduledInput struct {
	ChatKey                models.ChatKey
	ContentType            models.ScheduledContentType
	Content                string
	QuickReplyID           *string
	ScheduledAt            time.Time
	CancelOnContactMessage bool
	CancelOnAgentMessage   bool
	CancelOnChatClose      bool
	AgentID                string
}

func (s *ScheduledService) Create(ctx context.Context, orgID string, in CreateScheduledInput) (*models.ScheduledMessage, error) {
	if in.ContentType != models.ScheduledMessageContent && in.ContentType != models.ScheduledCommentContent {
		return nil, apperr.Validation("contentType must be message or comment")
	}
	if strings.TrimSpace(in.Content) == "" && in.QuickReplyID == nil {
		return nil, apperr.Validation("either content or quickReplyId is required")
	}
	if !in.ScheduledAt.After(s.now()) {
		return nil, apperr.Validation("scheduledAt must be in the future")
	}
	if in.QuickReplyID != nil {
		if _, err := s.org.QuickReplyByID(ctx, orgID, *in.QuickReplyID); err != nil {
			return nil, err
		}
	}
	if _, err := s.chats.FindByKey(ctx, orgID, in.ChatKey); err != nil {
		return nil, err
	}

	sm := &models.ScheduledMessage{
		ID:                     s.newID(),
		ChatID:                 in.ChatKey.ID,
		ChatCreatedAt:          in.ChatKey.CreatedAt,
		ContentType:            in.ContentType,
		Content:                in.Content,
		QuickReplyID:           in.QuickReplyID,
		ScheduledAt:            in.ScheduledAt.UTC(),
		Status:                 models.ScheduledPending,
		CancelOnContactMessage: in.CancelOnContactMessage,
		CancelOnAgentMessage:   in.CancelOnAgentMessage,
		CancelOnChatClose:      in.CancelOnChatClose,
		CreatedBy:              in.AgentID,
		CreatedAt:              s.now().UTC(),
	}
	if err := s.scheduled.Insert(ctx, orgID, sm); err != nil {
		return nil, err
	}
	return sm, nil
}

// Cancel is the manual path; anything not pending is rejected since sent and
// cancelled are terminal.
func (s *ScheduledService) Cancel(ctx context.Context, orgID, id string) error {
	sm, err := s.scheduled.FindByID(ctx, orgID, id)
	if err != nil {
		return err
	}
	if sm.Status != models.ScheduledPending {
		return apperr.Validation("scheduled message is no longer pending")
	}
	sm.Status = models.ScheduledCancelled
	sm.CancellationReason = models.CancelManual
	return s.scheduled.Replace(ctx, orgID, sm)
}

// CancelPending cancels every pending scheduled message for the chat whose
// matching auto-cancel trigger is armed. Implements AutoCanceller.
func (s *ScheduledService) CancelPending(ctx context.Context, orgID, chatID string, reason models.CancellationReason) (int, error) {
	pending, err := s.scheduled.FindPendingByChat(ctx, orgID, chatID)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for i := range pending {
		sm := pending[i]
		if !sm.CancelsOn(reason) {
			continue
		}
		sm.Status = models.ScheduledCancelled
		sm.CancellationReason = reason
		if err := s.scheduled.Replace(ctx, orgID, &sm); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}
