package models

import "time"

type Sender string

const (
	SenderAgent   Sender = "agent"
	SenderContact Sender = "contact"
	SenderSystem  Sender = "system"
)

type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeDocument MessageType = "document"
	TypeContact  MessageType = "contact"
	TypeSystem   MessageType = "system"
)

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusReceived  MessageStatus = "received"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// MessageKey is the composite identity of a message. Timestamp participates in
// the key so edits and status updates can target an exact instant without a
// separate sequence column.
type MessageKey struct {
	ID        string    `bson:"id" json:"id"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Metadata keys used across the pipeline.
const (
	MetaSystemEventType = "systemEventType"
	MetaReplySnapshot   = "replySnapshot"
	MetaTempID          = "tempId"
	MetaSourceMessageID = "sourceMessageId"
	MetaSourceOrgID     = "sourceOrgId"
	MetaErrorMessage    = "errorMessage"
)

// ReplySnapshot is the denormalized copy of a quoted message carried in the
// replying message's metadata so renderers avoid a join.
type ReplySnapshot struct {
	Content     string      `bson:"content" json:"content"`
	Sender      Sender      `bson:"sender" json:"sender"`
	MessageType MessageType `bson:"messageType" json:"messageType"`
}

type Message struct {
	ID                 string         `bson:"_id" json:"id"`
	Timestamp          time.Time      `bson:"timestamp" json:"timestamp"`
	ChatID             string         `bson:"chatId" json:"chatId"`
	ChatCreatedAt      time.Time      `bson:"chatCreatedAt" json:"chatCreatedAt"`
	Sender             Sender         `bson:"sender" json:"sender"`
	SenderID           *string        `bson:"senderId,omitempty" json:"senderId,omitempty"`
	Type               MessageType    `bson:"messageType" json:"messageType"`
	Content            string         `bson:"content" json:"content"`
	Status             MessageStatus  `bson:"status" json:"status"`
	WhatsappMessageID  string         `bson:"whatsappMessageId,omitempty" json:"whatsappMessageId,omitempty"`
	IsEdited           bool           `bson:"isEdited" json:"isEdited"`
	EditedAt           *time.Time     `bson:"editedAt,omitempty" json:"editedAt,omitempty"`
	IsDeleted          bool           `bson:"isDeleted" json:"isDeleted"`
	RepliedToMessageID *string        `bson:"repliedToMessageId,omitempty" json:"repliedToMessageId,omitempty"`
	Metadata           map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

func (m *Message) Key() MessageKey { return MessageKey{ID: m.ID, Timestamp: m.Timestamp} }

// AsLastMessage projects the message onto the chat-level aggregate shape.
func (m *Message) AsLastMessage() LastMessage {
	at := m.Timestamp
	return LastMessage{
		At:        &at,
		Content:   m.Content,
		Sender:    m.Sender,
		Status:    m.Status,
		Type:      m.Type,
		IsDeleted: m.IsDeleted,
	}
}
