// Package listener runs the long-poll loop that links Telegram identities to
// phone numbers. It is the only writer into the phone directory.
package listener

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/virangk414141/vimesta2/internal/directory"
	"github.com/virangk414141/vimesta2/internal/telegram"
)

const (
	pollTimeout  = 30 * time.Second
	errorBackoff = 5 * time.Second
)

const (
	verifiedText     = "✅ <b>Verified!</b>\nNow log in on Vimesta Cloud."
	shareContactText = "🚀 <b>Vimesta Cloud</b>\n\nShare your phone to continue 👇"
)

// API is the slice of the Telegram client the listener needs.
type API interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (int64, error)
}

// Listener long-polls for inbound updates and dispatches contact shares and
// /start commands. It is meant to run for the life of the process.
type Listener struct {
	api API
	dir *directory.Directory

	offset int64
}

// New creates a listener over the given API and directory.
func New(api API, dir *directory.Directory) *Listener {
	return &Listener{api: api, dir: dir}
}

// Run polls until ctx is canceled. Any poll or dispatch failure is logged and
// followed by a fixed backoff; the loop itself never fails. A panic in a
// cycle is recovered and treated like any other cycle error.
func (l *Listener) Run(ctx context.Context) {
	log.Printf("listener: started")
	for {
		select {
		case <-ctx.Done():
			log.Printf("listener: stopped: %v", ctx.Err())
			return
		default:
		}

		if err := l.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			if !telegram.IsTimeout(err) {
				log.Printf("listener: poll failed: %v", err)
			}
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
		}
	}
}

// cycle performs one long-poll and dispatches the batch. The offset advances
// to the highest update id observed across the whole batch, which is the
// sole dedup mechanism: the platform never re-delivers below an acknowledged
// offset.
func (l *Listener) cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in poll cycle: %v", r)
		}
	}()

	var offset int64
	if l.offset > 0 {
		offset = l.offset + 1
	}
	updates, _, err := l.api.GetUpdates(ctx, offset, pollTimeout)
	if err != nil {
		return err
	}
	for _, upd := range updates {
		if upd.UpdateID > l.offset {
			l.offset = upd.UpdateID
		}
		l.handle(ctx, upd)
	}
	return nil
}

func (l *Listener) handle(ctx context.Context, upd telegram.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	if msg.Contact != nil {
		phone := msg.Contact.PhoneNumber
		if phone == "" {
			return
		}
		identity, err := l.dir.Register(phone, chatID, msg.Contact.FirstName)
		if err != nil {
			log.Printf("listener: register contact failed: %v", err)
			return
		}
		log.Printf("listener: registered %s -> %d", identity.Phone, identity.TelegramID)
		if _, err := l.api.SendMessage(ctx, chatID, verifiedText, telegram.SendOptions{}); err != nil {
			log.Printf("listener: confirmation send failed: %v", err)
		}
		return
	}

	if isStartCommand(msg.Text) {
		opts := telegram.SendOptions{ReplyMarkup: telegram.ContactRequestKeyboard()}
		if _, err := l.api.SendMessage(ctx, chatID, shareContactText, opts); err != nil {
			log.Printf("listener: contact prompt send failed: %v", err)
		}
	}
}

func isStartCommand(text string) bool {
	return strings.HasPrefix(text, "/start")
}
