package models

import "time"

type ChatStatus string

const (
	ChatPending ChatStatus = "pending"
	ChatOpen    ChatStatus = "open"
	ChatClosed  ChatStatus = "closed"
)

type MessageSource string

const (
	SourceWhatsApp MessageSource = "whatsapp"
	SourceInternal MessageSource = "internal"
)

type RatingStatus string

const (
	RatingNone     RatingStatus = ""
	RatingAwaiting RatingStatus = "awaiting"
	RatingReceived RatingStatus = "received"
)

// ChatKey is the composite identity of a chat. CreatedAt participates in the
// key and must never change after insert.
type ChatKey struct {
	ID        string    `bson:"id" json:"id"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// LastMessage is the denormalized cache of a chat's most recent message.
// Consumers must treat it as an eventually-consistent projection of the
// message collection, never as the source of truth.
type LastMessage struct {
	At        *time.Time    `bson:"lastMessageAt" json:"lastMessageAt"`
	Content   string        `bson:"lastMessageContent" json:"lastMessageContent"`
	Sender    Sender        `bson:"lastMessageSender" json:"lastMessageSender"`
	Status    MessageStatus `bson:"lastMessageStatus" json:"lastMessageStatus"`
	Type      MessageType   `bson:"lastMessageType" json:"lastMessageType"`
	IsDeleted bool          `bson:"lastMessageIsDeleted" json:"lastMessageIsDeleted"`
}

type Chat struct {
	ID               string        `bson:"_id" json:"id"`
	CreatedAt        time.Time     `bson:"createdAt" json:"createdAt"`
	Status           ChatStatus    `bson:"status" json:"status"`
	MessageSource    MessageSource `bson:"messageSource" json:"messageSource"`
	AssignedTo       *string       `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	DepartmentID     *string       `bson:"departmentId,omitempty" json:"departmentId,omitempty"`
	ContactID        string        `bson:"contactId" json:"contactId"`
	ChannelID        *string       `bson:"channelId,omitempty" json:"channelId,omitempty"`
	UnreadCount      int           `bson:"unreadCount" json:"unreadCount"`
	TotalMessages    int64         `bson:"totalMessages" json:"totalMessages"`
	LastMessage      `bson:",inline"`
	RatingStatus     RatingStatus `bson:"ratingStatus" json:"ratingStatus"`
	EndingID         *string      `bson:"endingId,omitempty" json:"endingId,omitempty"`
	InitiatorAgentID *string      `bson:"initiatorAgentId,omitempty" json:"initiatorAgentId,omitempty"`
}

func (c *Chat) Key() ChatKey { return ChatKey{ID: c.ID, CreatedAt: c.CreatedAt} }

// Active reports whether the chat can still receive inbound messages.
func (c *Chat) Active() bool { return c.Status == ChatOpen || c.Status == ChatPending }
