package models

import "time"

// ChatParticipant tracks per-agent unread state for a chat, independent of the
// chat-level unreadCount (which follows the currently assigned agent only).
// Keyed by (chatId, chatCreatedAt, agentId); created lazily on first
// assignment, transfer or read.
type ChatParticipant struct {
	ChatID        string     `bson:"chatId" json:"chatId"`
	ChatCreatedAt time.Time  `bson:"chatCreatedAt" json:"chatCreatedAt"`
	AgentID       string     `bson:"agentId" json:"agentId"`
	UnreadCount   int        `bson:"unreadCount" json:"unreadCount"`
	LastReadAt    *time.Time `bson:"lastReadAt,omitempty" json:"lastReadAt,omitempty"`
}
