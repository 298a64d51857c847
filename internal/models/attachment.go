package models

import "time"

type DownloadStatus string

const (
	DownloadPending   DownloadStatus = "pending"
	DownloadCompleted DownloadStatus = "completed"
	DownloadFailed    DownloadStatus = "failed"
)

// Attachment is 1:1 with a media message. It is created with a placeholder
// storage path and flips to completed once the download worker re-uploads the
// binary to durable storage.
type Attachment struct {
	ID               string         `bson:"_id" json:"id"`
	MessageID        string         `bson:"messageId" json:"messageId"`
	MessageTimestamp time.Time      `bson:"messageTimestamp" json:"messageTimestamp"`
	MediaType        MessageType    `bson:"mediaType" json:"mediaType"`
	MimeType         string         `bson:"mimeType" json:"mimeType"`
	FileName         string         `bson:"fileName" json:"fileName"`
	StoragePath      string         `bson:"storagePath" json:"storagePath"`
	StorageURL       string         `bson:"storageUrl,omitempty" json:"storageUrl,omitempty"`
	ThumbnailPath    string         `bson:"thumbnailPath,omitempty" json:"thumbnailPath,omitempty"`
	DownloadStatus   DownloadStatus `bson:"downloadStatus" json:"downloadStatus"`
	CreatedAt        time.Time      `bson:"createdAt" json:"createdAt"`
}
