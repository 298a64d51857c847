package models

import "time"

// OrgPeer links two organizations that share a contact relationship. Chats
// opened by an agent of OrgID toward PeerOrgID are mirror-eligible.
type OrgPeer struct {
	OrgID     string    `bson:"orgId" json:"orgId"`
	PeerOrgID string    `bson:"peerOrgId" json:"peerOrgId"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// ChatLink is the logical mapping between a source chat and its mirrored
// counterpart in another organization's database. The two chats share no
// foreign key; this record is the only join point.
type ChatLink struct {
	SourceOrgID         string    `bson:"sourceOrgId" json:"sourceOrgId"`
	SourceChatID        string    `bson:"sourceChatId" json:"sourceChatId"`
	SourceChatCreatedAt time.Time `bson:"sourceChatCreatedAt" json:"sourceChatCreatedAt"`
	TargetOrgID         string    `bson:"targetOrgId" json:"targetOrgId"`
	TargetChatID        string    `bson:"targetChatId" json:"targetChatId"`
	TargetChatCreatedAt time.Time `bson:"targetChatCreatedAt" json:"targetChatCreatedAt"`
	TargetContactID     string    `bson:"targetContactId" json:"targetContactId"`
	InitiatorAgentID    string    `bson:"initiatorAgentId" json:"initiatorAgentId"`
	CreatedAt           time.Time `bson:"createdAt" json:"createdAt"`
}
