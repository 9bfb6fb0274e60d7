package model

import (
	"time"

	"github.com/google/uuid"
)

// User is an account created on first successful phone verification.
type User struct {
	ID          uuid.UUID
	TelegramID  int64
	PhoneNumber string
	FirstName   string
	StorageUsed int64
	CreatedAt   time.Time
	LastLogin   time.Time
}

// File is the metadata record of an object held in the hidden Telegram
// storage. TelegramFileID is the durable retrieval key; TelegramMessageID is
// only needed to delete the underlying chat message.
type File struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	TelegramFileID    string
	TelegramMessageID int64
	OriginalFilename  string
	FileSize          int64
	FileType          string
	MimeType          string
	UploadDate        time.Time
	IsPublic          bool
	PublicLinkHash    *string
	DownloadCount     int
}

// Session is the audit/revocation record companion to a signed bearer token.
// The token itself carries its own expiry; Active is the revocation surface.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	IPAddress *string
	UserAgent *string
	CreatedAt time.Time
	ExpiresAt time.Time
	Active    bool
}

// TypeStat is a per-file-type aggregate for the storage overview.
type TypeStat struct {
	FileType string
	Count    int
	Size     int64
}
