package whatsapp

import (
	"strings"
	"time"
)

const (
	userJidSuffix   = "@s.whatsapp.net"
	groupJidSuffix  = "@g.us"
	linkedJidSuffix = "@lid"
)

// KeyInfo correlates a webhook message with the gateway-side identity.
// ID is the de-duplication key, unique per organization.
type KeyInfo struct {
	ID           string `json:"id"`
	RemoteJid    string `json:"remoteJid"`
	RemoteJidAlt string `json:"remoteJidAlt,omitempty"`
	FromMe       bool   `json:"fromMe"`
}

type ExtendedText struct {
	Text string `json:"text"`
}

type MediaPart struct {
	URL      string `json:"url,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	Caption  string `json:"caption,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type ContactCard struct {
	DisplayName string `json:"displayName"`
	Vcard       string `json:"vcard,omitempty"`
}

type ContactsArray struct {
	Contacts []ContactCard `json:"contacts"`
}

// Payload carries exactly one type-specific sub-object per message.
type Payload struct {
	Conversation         string         `json:"conversation,omitempty"`
	ExtendedTextMessage  *ExtendedText  `json:"extendedTextMessage,omitempty"`
	ImageMessage         *MediaPart     `json:"imageMessage,omitempty"`
	VideoMessage         *MediaPart     `json:"videoMessage,omitempty"`
	AudioMessage         *MediaPart     `json:"audioMessage,omitempty"`
	DocumentMessage      *MediaPart     `json:"documentMessage,omitempty"`
	ContactMessage       *ContactCard   `json:"contactMessage,omitempty"`
	ContactsArrayMessage *ContactsArray `json:"contactsArrayMessage,omitempty"`
}

type ContextInfo struct {
	StanzaID      string   `json:"stanzaId,omitempty"`
	QuotedMessage *Payload `json:"quotedMessage,omitempty"`
}

// WebhookMessage is the inbound gateway payload. MessageTimestamp is epoch
// seconds.
type WebhookMessage struct {
	Key              KeyInfo      `json:"key"`
	PushName         string       `json:"pushName,omitempty"`
	MessageType      string       `json:"messageType"`
	MessageTimestamp int64        `json:"messageTimestamp"`
	Message          *Payload     `json:"message,omitempty"`
	ContextInfo      *ContextInfo `json:"contextInfo,omitempty"`
}

// Timestamp converts the epoch-seconds gateway stamp to a UTC instant.
func (w *WebhookMessage) Timestamp() time.Time {
	return time.Unix(w.MessageTimestamp, 0).UTC()
}

// IsGroup reports whether the remote identifier denotes a group conversation.
func IsGroup(jid string) bool {
	return strings.HasSuffix(jid, groupJidSuffix)
}

// PhoneFromJid extracts the phone number from a remote identifier. The
// primary identifier may be an anonymized linked id; when it is and a real
// alternate is present, the alternate wins. Returns "" when no usable phone
// number can be extracted.
func PhoneFromJid(remoteJid, remoteJidAlt string) string {
	jid := remoteJid
	if strings.HasSuffix(jid, linkedJidSuffix) {
		if remoteJidAlt == "" {
			return ""
		}
		jid = remoteJidAlt
	}
	if !strings.HasSuffix(jid, userJidSuffix) {
		return ""
	}
	return strings.TrimSuffix(jid, userJidSuffix)
}
