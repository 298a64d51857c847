package models

import "time"

type ScheduledContentType string

const (
	ScheduledMessageContent ScheduledContentType = "message"
	ScheduledCommentContent ScheduledContentType = "comment"
)

type ScheduledStatus string

const (
	ScheduledPending   ScheduledStatus = "pending"
	ScheduledSent      ScheduledStatus = "sent"
	ScheduledCancelled ScheduledStatus = "cancelled"
)

type CancellationReason string

const (
	CancelManual         CancellationReason = "manual"
	CancelContactMessage CancellationReason = "contact_message"
	CancelAgentMessage   CancellationReason = "agent_message"
	CancelChatClosed     CancellationReason = "chat_closed"
)

// ScheduledMessage is a message or quick-reply send deferred to a future
// instant. It is mutable only while pending and becomes sent or cancelled
// exactly once.
type ScheduledMessage struct {
	ID                     string               `bson:"_id" json:"id"`
	ChatID                 string               `bson:"chatId" json:"chatId"`
	ChatCreatedAt          time.Time            `bson:"chatCreatedAt" json:"chatCreatedAt"`
	ContentType            ScheduledContentType `bson:"contentType" json:"contentType"`
	Content                string               `bson:"content,omitempty" json:"content,omitempty"`
	QuickReplyID           *string              `bson:"quickReplyId,omitempty" json:"quickReplyId,omitempty"`
	ScheduledAt            time.Time            `bson:"scheduledAt" json:"scheduledAt"`
	Status                 ScheduledStatus      `bson:"status" json:"status"`
	CancelOnContactMessage bool                 `bson:"cancelOnContactMessage" json:"cancelOnContactMessage"`
	CancelOnAgentMessage   bool                 `bson:"cancelOnAgentMessage" json:"cancelOnAgentMessage"`
	CancelOnChatClose      bool                 `bson:"cancelOnChatClose" json:"cancelOnChatClose"`
	CancellationReason     CancellationReason   `bson:"cancellationReason,omitempty" json:"cancellationReason,omitempty"`
	CreatedBy              string               `bson:"createdBy" json:"createdBy"`
	CreatedAt              time.Time            `bson:"createdAt" json:"createdAt"`
}

// CancelsOn reports whether the given reason is an armed auto-cancel trigger
// for this scheduled message.
func (s *ScheduledMessage) CancelsOn(reason CancellationReason) bool {
	switch reason {
	case CancelContactMessage:
		return s.CancelOnContactMessage
	case CancelAgentMessage:
		return s.CancelOnAgentMessage
	case CancelChatClosed:
		return s.CancelOnChatClose
	case CancelManual:
		return true
	}
	return false
}
