package service

import (
	"context"
	"time"

	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
)

// ParticipantService keeps per-agent unread bookkeeping, independent of the
// chat-level aggregate that follows the currently assigned agent.
type ParticipantService struct {
	participants repository.ParticipantStore
	now          func() time.Time
}

func NewParticipantService(participants repository.ParticipantStore) *ParticipantService {
	return &ParticipantService{participants: participants, now: time.Now}
}

// MarkRead zeroes the agent's counter and stamps lastReadAt.
func (s *ParticipantService) MarkRead(ctx context.Context, orgID string, key models.ChatKey, agentID string) error {
	return s.participants.Reset(ctx, orgID, key, agentID, s.now().UTC())
}

// BumpUnread records one unseen message for the agent.
func (s *ParticipantService) BumpUnread(ctx context.Context, orgID string, key models.ChatKey, agentID string) error {
	return s.participants.IncrementUnread(ctx, orgID, key, agentID, 1)
}

// Rehome moves the chat's preserved unread value onto the destination
// agent's row and clears the origin's, per transfer-to-agent semantics.
func (s *ParticipantService) Rehome(ctx context.Context, orgID string, key models.ChatKey, fromAgentID *string, toAgentID string, unread int) error {
	if fromAgentID != nil {
		if err := s.participants.Reset(ctx, orgID, key, *fromAgentID, s.now().UTC()); err != nil {
			return err
		}
	}
	return s.participants.Upsert(ctx, orgID, &models.ChatParticipant{
		ChatID:        key.ID,
		ChatCreatedAt: key.CreatedAt,
		AgentID:       toAgentID,
		UnreadCount:   unread,
	})
}
