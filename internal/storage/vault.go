// Package storage hides user files inside a Telegram chat: uploads go to a
// single sink identity as silent documents, and download links are resolved
// lazily through a bounded TTL cache.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/virangk414141/vimesta2/internal/directory"
	"github.com/virangk414141/vimesta2/internal/telegram"
)

// ErrNoStorageConfigured means no sink identity exists yet: nothing is
// configured and nobody has registered.
var ErrNoStorageConfigured = errors.New("no storage configured")

// Receipt holds the storage coordinates of an uploaded file. FileID is the
// durable retrieval key; MessageID is only needed to delete the underlying
// message later.
type Receipt struct {
	FileID    string
	MessageID int64
	Size      int64
}

// API is the slice of the Telegram client the vault needs.
type API interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (int64, error)
	SendDocument(ctx context.Context, chatID int64, path, filename, caption string) (*telegram.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Vault is the hidden upload pipeline. The sink is the configured identity
// when present, otherwise the first identity ever registered; once resolved
// it never changes for the life of the process.
type Vault struct {
	api API
	dir *directory.Directory

	// UploadTimeout bounds a single document push; generous because files
	// can be large.
	UploadTimeout time.Duration
	// NotifyDelay is how long the user-visible receipt survives before its
	// deletion is attempted.
	NotifyDelay time.Duration

	mu             sync.Mutex
	configuredSink int64
	sink           int64

	notify sync.WaitGroup
}

// NewVault creates a vault. configuredSink 0 enables the first-registered
// fallback, which is a development convenience; production deployments
// should pin the sink explicitly.
func NewVault(api API, dir *directory.Directory, configuredSink int64) *Vault {
	return &Vault{
		api:            api,
		dir:            dir,
		configuredSink: configuredSink,
		UploadTimeout:  5 * time.Minute,
		NotifyDelay:    2 * time.Second,
	}
}

// Sink resolves and latches the storage sink identity.
func (v *Vault) Sink() (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sink != 0 {
		return v.sink, nil
	}
	if v.configuredSink != 0 {
		v.sink = v.configuredSink
		return v.sink, nil
	}
	first, ok := v.dir.First()
	if !ok {
		return 0, ErrNoStorageConfigured
	}
	log.Printf("storage: no sink configured, latching first registered identity %d (dev fallback)", first.TelegramID)
	v.sink = first.TelegramID
	return v.sink, nil
}

// Upload pushes the local file into the sink as a silent document whose
// caption embeds the display name and the uploader's phone. On success a
// short receipt is sent to the uploader and erased shortly after, purely
// cosmetic and fully detached from the upload result. The pipeline never
// partially commits: either a complete Receipt comes back or nothing was
// recorded.
func (v *Vault) Upload(ctx context.Context, localPath, displayName string, ownerID int64, ownerPhone string) (Receipt, error) {
	sink, err := v.Sink()
	if err != nil {
		return Receipt{}, err
	}

	caption := fmt.Sprintf("📁 %s\n👤 %s", displayName, ownerPhone)
	upCtx, cancel := context.WithTimeout(ctx, v.UploadTimeout)
	defer cancel()

	msg, err := v.api.SendDocument(upCtx, sink, localPath, displayName, caption)
	if err != nil {
		return Receipt{}, fmt.Errorf("push document to storage: %w", err)
	}
	if msg.Document == nil || msg.Document.FileID == "" {
		return Receipt{}, fmt.Errorf("storage response missing document handle")
	}

	if ownerID != 0 && ownerID != sink {
		v.notify.Add(1)
		go v.notifyAndErase(ownerID, displayName)
	}

	return Receipt{
		FileID:    msg.Document.FileID,
		MessageID: msg.MessageID,
		Size:      msg.Document.FileSize,
	}, nil
}

// notifyAndErase sends the ephemeral "uploaded" receipt and deletes it after
// NotifyDelay. Failures are logged and discarded.
func (v *Vault) notifyAndErase(chatID int64, displayName string) {
	defer v.notify.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	msgID, err := v.api.SendMessage(ctx, chatID,
		fmt.Sprintf("☁️ <b>Uploaded to Cloud!</b>\n📁 %s", displayName),
		telegram.SendOptions{Silent: true})
	cancel()
	if err != nil {
		log.Printf("storage: upload receipt send failed: %v", err)
		return
	}

	time.Sleep(v.NotifyDelay)

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := v.api.DeleteMessage(ctx, chatID, msgID); err != nil {
		log.Printf("storage: upload receipt delete failed: %v", err)
	}
}

// Delete removes the underlying storage message, best effort. The metadata
// record is the source of truth, so failures are logged and swallowed.
func (v *Vault) Delete(ctx context.Context, messageID int64) {
	sink, err := v.Sink()
	if err != nil {
		log.Printf("storage: delete skipped: %v", err)
		return
	}
	delCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := v.api.DeleteMessage(delCtx, sink, messageID); err != nil {
		log.Printf("storage: delete message %d failed: %v", messageID, err)
	}
}
