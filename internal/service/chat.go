package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/events"
	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/repository"
)

// ChatService drives chat status transitions: pending → open → closed, with
// reopen and reassign self-loops. Every transition notifies the real-time
// layer only after the write commits.
type ChatService struct {
	chats        repository.ChatStore
	messages     repository.MessageStore
	participants *ParticipantService
	org          repository.OrgStore
	autoCancel   AutoCanceller
	postActions  *PostActionsService
	events       events.Publisher
	log          *zap.Logger
	now          func() time.Time
	newID        func() string
}

func NewChatService(
	chats repository.ChatStore,
	messages repository.MessageStore,
	participants *ParticipantService,
	org repository.OrgStore,
	autoCancel AutoCanceller,
	postActions *PostActionsService,
	pub events.Publisher,
	log *zap.Logger,
) *ChatService {
	return &ChatService{
		chats:        chats,
		messages:     messages,
		participants: participants,
		org:          org,
		autoCancel:   autoCancel,
		postActions:  postActions,
		events:       pub,
		log:          log,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Assign opens the chat for an agent. Repeating the assign to the same agent
// re-zeroes the unread counters.
func (s *ChatService) Assign(ctx context.Context, orgID string, key models.ChatKey, agentID string) (*models.Chat, error) {
	agent, err := s.org.AgentByID(ctx, orgID, agentID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.FindByKey(ctx, orgID, key)
	if err != nil {
		return nil, err
	}

	chat.Status = models.ChatOpen
	chat.AssignedTo = &agent.ID
	chat.UnreadCount = 0
	if err := s.chats.Replace(ctx, orgID, chat); err != nil {
		return nil, err
	}
	if err := s.participants.MarkRead(ctx, orgID, key, agent.ID); err != nil {
		return nil, err
	}
	s.systemMessage(ctx, orgID, chat, "assigned",
		fmt.Sprintf("Session transferred to %s at %s", agent.Name, s.now().Format("15:04")))
	_ = s.events.ChatUpdated(ctx, orgID, chat, events.Context{TargetAgentID: agent.ID})
	return chat, nil
}

type TransferInput struct {
	ToAgentID      *string
	ToDepartmentID *string
}

// Transfer re-homes the chat either onto another agent (stays open, unread
// value moves with it) or back onto a department queue (unassigned, pending).
func (s *ChatService) Transfer(ctx context.Context, orgID string, key models.ChatKey, in TransferInput) (*models.Chat, error) {
	if (in.ToAgentID == nil) == (in.ToDepartmentID == nil) {
		return nil, apperr.Validation("exactly one of toAgentId or toDepartmentId must be set")
	}
	chat, err := s.chats.FindByKey(ctx, orgID, key)
	if err != nil {
		return nil, err
	}
	if in.ToAgentID != nil {
		return s.transferToAgent(ctx, orgID, chat, *in.ToAgentID)
	}
	return s.transferToDepartment(ctx, orgID, chat, *in.ToDepartmentID)
}

func (s *ChatService) transferToAgent(ctx context.Context, orgID string, chat *models.Chat, agentID string) (*models.Chat, error) {
	agent, err := s.org.AgentByID(ctx, orgID, agentID)
	if err != nil {
		return nil, err
	}
	fromName := "queue"
	fromAgent := chat.AssignedTo
	if fromAgent != nil {
		if prev, err := s.org.AgentByID(ctx, orgID, *fromAgent); err == nil {
			fromName = prev.Name
		}
	}

	// destination department follows the target agent's permissions: first
	// allowed department, or none when the agent has blanket access
	if len(agent.DepartmentPermissions) > 0 {
		dept := agent.DepartmentPermissions[0]
		chat.DepartmentID = &dept
	} else {
		chat.DepartmentID = nil
	}
	chat.Status = models.ChatOpen
	chat.AssignedTo = &agent.ID
	if err := s.chats.Replace(ctx, orgID, chat); err != nil {
		return nil, err
	}
	if err := s.participants.Rehome(ctx, orgID, chat.Key(), fromAgent, agent.ID, chat.UnreadCount); err != nil {
		return nil, err
	}
	s.systemMessage(ctx, orgID, chat, "transferred",
		fmt.Sprintf("Session transferred from %s to %s at %s", fromName, agent.Name, s.now().Format("15:04")))
	_ = s.events.ChatUpdated(ctx, orgID, chat, events.Context{TargetAgentID: agent.ID})
	return chat, nil
}

func (s *ChatService) transferToDepartment(ctx context.Context, orgID string, chat *models.Chat, departmentID string) (*models.Chat, error) {
	dept, err := s.org.DepartmentByID(ctx, orgID, departmentID)
	if err != nil {
		return nil, err
	}
	chat.AssignedTo = nil
	chat.Status = models.ChatPending
	chat.DepartmentID = &dept.ID
	if err := s.chats.Replace(ctx, orgID, chat); err != nil {
		return nil, err
	}
	s.systemMessage(ctx, orgID, chat, "transferred",
		fmt.Sprintf("Session transferred to %s department at %s", dept.Name, s.now().Format("15:04")))
	_ = s.events.ChatUpdated(ctx, orgID, chat, events.Context{})
	return chat, nil
}

// Close ends the chat, records the ending, writes the closure protocol block
// and hands off to the post-close decision.
func (s *ChatService) Close(ctx context.Context, orgID string, key models.ChatKey, agentID string, endingID *string) (*models.Chat, error) {
	agent, err := s.org.AgentByID(ctx, orgID, agentID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chats.FindByKey(ctx, orgID, key)
	if err != nil {
		return nil, err
	}

	departmentName := ""
	if chat.DepartmentID != nil {
		if dept, err := s.org.DepartmentByID(ctx, orgID, *chat.DepartmentID); err == nil {
			departmentName = dept.Name
		}
	}
	var ending *models.Ending
	if endingID != nil {
		ending, err = s.org.EndingByID(ctx, orgID, *endingID)
		if err != nil {
			return nil, err
		}
	}

	// "attended at" is the first real message; a chat that never had one
	// falls back to its creation time
	attendedAt := chat.CreatedAt
	if first, err := s.messages.FirstNonSystem(ctx, orgID, chat.ID); err == nil {
		attendedAt = first.Timestamp
	}
	closedAt := s.now().UTC()

	chat.Status = models.ChatClosed
	chat.EndingID = endingID
	if err := s.chats.Replace(ctx, orgID, chat); err != nil {
		return nil, err
	}

	endingTitle := ""
	if ending != nil {
		endingTitle = ending.Title
	}
	s.systemMessage(ctx, orgID, chat, "closed",
		ClosureProtocol(chat.ID, agent.Name, departmentName, endingTitle, chat.CreatedAt, attendedAt, closedAt))

	if _, err := s.autoCancel.CancelPending(ctx, orgID, chat.ID, models.CancelChatClosed); err != nil {
		s.log.Warn("auto-cancel on close failed", zap.String("chat", chat.ID), zap.Error(err))
	}
	if err := s.postActions.Dispatch(ctx, orgID, chat, ending); err != nil {
		s.log.Warn("post-close action failed", zap.String("chat", chat.ID), zap.Error(err))
	}
	_ = s.events.ChatUpdated(ctx, orgID, chat, events.Context{})
	return chat, nil
}

// Reopen returns a closed chat to open and clears the recorded ending.
func (s *ChatService) Reopen(ctx context.Context, orgID string, key models.ChatKey) (*models.Chat, error) {
	chat, err := s.chats.FindByKey(ctx, orgID, key)
	if err != nil {
		return nil, err
	}
	chat.Status = models.ChatOpen
	chat.EndingID = nil
	if err := s.chats.Replace(ctx, orgID, chat); err != nil {
		return nil, err
	}
	_ = s.events.ChatUpdated(ctx, orgID, chat, events.Context{})
	return chat, nil
}

func (s *ChatService) systemMessage(ctx context.Context, orgID string, chat *models.Chat, eventType, content string) {
	msg := &models.Message{
		ID:            s.newID(),
		Timestamp:     s.now().UTC(),
		ChatID:        chat.ID,
		ChatCreatedAt: chat.CreatedAt,
		Sender:        models.SenderSystem,
		Type:          models.TypeSystem,
		Content:       content,
		Status:        models.StatusSent,
		Metadata:      map[string]any{models.MetaSystemEventType: eventType},
	}
	if err := s.messages.Insert(ctx, orgID, msg); err != nil {
		s.log.Error("system message insert failed",
			zap.String("chat", chat.ID),
			zap.String("event", eventType),
			zap.Error(err))
		return
	}
	_ = s.events.MessageCreated(ctx, orgID, msg, events.Context{})
}

const protocolTimeLayout = "02/01/2006 15:04"

// ClosureProtocol renders the fixed-format close block. Pure formatting:
// given the same inputs the output is byte-identical. The protocol number is
// derived from the close instant and the chat id.
func ClosureProtocol(chatID, agentName, departmentName, endingTitle string, createdAt, attendedAt, closedAt time.Time) string {
	department := departmentName
	if department == "" {
		department = "-"
	}
	reason := endingTitle
	if reason == "" {
		reason = "-"
	}
	ref := chatID
	if len(ref) > 8 {
		ref = ref[:8]
	}
	return fmt.Sprintf(
		"Protocol: %s-%s\nAgent: %s\nDepartment: %s\nReason: %s\nStarted at: %s\nAttended at: %s\nClosed at: %s\nDuration: %s",
		closedAt.UTC().Format("20060102150405"), ref,
		agentName,
		department,
		reason,
		createdAt.UTC().Format(protocolTimeLayout),
		attendedAt.UTC().Format(protocolTimeLayout),
		closedAt.UTC().Format(protocolTimeLayout),
		closedAt.Sub(attendedAt).Round(time.Second).String(),
	)
}
