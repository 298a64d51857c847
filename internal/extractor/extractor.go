// Package extractor normalizes raw inbound gateway payloads into the shape
// the ingestion pipeline persists. It is pure: no I/O, no side effects.
package extractor

import (
	"fmt"
	"strings"

	"github.com/solusinc/manylead-cloud-sub003/internal/models"
	"github.com/solusinc/manylead-cloud-sub003/internal/whatsapp"
)

// Content is the normalized extraction result. Text is never null: branches
// that have no text produce the empty string or a fixed label.
type Content struct {
	Text        string
	HasMedia    bool
	MediaURL    string
	MimeType    string
	FileName    string
	Caption     string
	ContactData *whatsapp.ContactCard
}

const (
	documentFallbackLabel = "[Document]"
	unsupportedLabel      = "[unsupported]"
)

// Extract maps the payload to its normalized content. Exactly one branch
// fires per call; the last-resort fallback is the unsupported label with no
// media.
func Extract(p *whatsapp.Payload) Content {
	switch {
	case p == nil:
		return Content{Text: unsupportedLabel}
	case p.Conversation != "":
		return Content{Text: p.Conversation}
	case p.ExtendedTextMessage != nil:
		return Content{Text: p.ExtendedTextMessage.Text}
	case p.ImageMessage != nil:
		// caption is the text when present, else empty; a present-but-empty
		// caption is not backfilled from the filename because previews
		// render the filename separately
		return mediaContent(p.ImageMessage, p.ImageMessage.Caption)
	case p.VideoMessage != nil:
		return mediaContent(p.VideoMessage, p.VideoMessage.Caption)
	case p.AudioMessage != nil:
		// audio never gets placeholder text
		return mediaContent(p.AudioMessage, "")
	case p.DocumentMessage != nil:
		text := p.DocumentMessage.Caption
		if text == "" {
			text = p.DocumentMessage.FileName
		}
		if text == "" {
			text = documentFallbackLabel
		}
		return mediaContent(p.DocumentMessage, text)
	case p.ContactMessage != nil:
		card := *p.ContactMessage
		return Content{Text: card.DisplayName, ContactData: &card}
	case p.ContactsArrayMessage != nil:
		return contactsContent(p.ContactsArrayMessage)
	}
	return Content{Text: unsupportedLabel}
}

func mediaContent(part *whatsapp.MediaPart, text string) Content {
	return Content{
		Text:     text,
		HasMedia: true,
		MediaURL: part.URL,
		MimeType: part.Mimetype,
		FileName: part.FileName,
		Caption:  part.Caption,
	}
}

func contactsContent(arr *whatsapp.ContactsArray) Content {
	if len(arr.Contacts) == 0 {
		return Content{Text: unsupportedLabel}
	}
	first := arr.Contacts[0]
	if len(arr.Contacts) == 1 {
		card := first
		return Content{Text: card.DisplayName, ContactData: &card}
	}
	card := first
	return Content{
		Text:        fmt.Sprintf("%s e outros %d contato(s)", first.DisplayName, len(arr.Contacts)-1),
		ContactData: &card,
	}
}

// MapType normalizes the gateway's type hint onto the message type enum. The
// hint vocabulary is a superset of the enum, so matching is by substring and
// the default is text.
func MapType(rawTypeHint string) models.MessageType {
	hint := strings.ToLower(rawTypeHint)
	switch {
	case strings.Contains(hint, "image"):
		return models.TypeImage
	case strings.Contains(hint, "video"):
		return models.TypeVideo
	case strings.Contains(hint, "audio"):
		return models.TypeAudio
	case strings.Contains(hint, "document"):
		return models.TypeDocument
	case strings.Contains(hint, "contact"):
		return models.TypeContact
	}
	return models.TypeText
}
