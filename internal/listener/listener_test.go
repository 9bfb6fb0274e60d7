package listener

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/virangk414141/vimesta2/internal/directory"
	"github.com/virangk414141/vimesta2/internal/telegram"
)

type sentMessage struct {
	chatID int64
	text   string
	opts   telegram.SendOptions
}

// fakeAPI replays scripted poll batches and records sent messages.
type fakeAPI struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	offsets []int64
	sent    []sentMessage
	pollErr error
}

func (f *fakeAPI) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	if f.pollErr != nil {
		err := f.pollErr
		f.pollErr = nil
		return nil, offset, err
	}
	if len(f.batches) == 0 {
		return nil, offset, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	next := offset
	for _, u := range batch {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return batch, next, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return int64(len(f.sent)), nil
}

func (f *fakeAPI) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestDirectory(t *testing.T) *directory.Directory {
	t.Helper()
	d, err := directory.Open(filepath.Join(t.TempDir(), "phone_directory.json"))
	require.NoError(t, err)
	return d
}

func contactUpdate(id, chatID int64, phone, name string) telegram.Update {
	return telegram.Update{
		UpdateID: id,
		Message: &telegram.Message{
			MessageID: id,
			Chat:      telegram.Chat{ID: chatID},
			Contact:   &telegram.Contact{PhoneNumber: phone, FirstName: name, UserID: chatID},
		},
	}
}

func textUpdate(id, chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: id,
		Message: &telegram.Message{
			MessageID: id,
			Chat:      telegram.Chat{ID: chatID},
			Text:      text,
		},
	}
}

func TestContactShareRegistersAndConfirms(t *testing.T) {
	dir := newTestDirectory(t)
	api := &fakeAPI{batches: [][]telegram.Update{
		{contactUpdate(10, 1001, "9876543210", "Asha")},
	}}
	l := New(api, dir)

	require.NoError(t, l.cycle(context.Background()))

	id, ok := dir.Resolve("+919876543210")
	require.True(t, ok, "contact share must register the identity")
	assert.Equal(t, int64(1001), id.TelegramID)
	assert.Equal(t, "Asha", id.FirstName)

	sent := api.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, int64(1001), sent[0].chatID)
	assert.Contains(t, sent[0].text, "Verified")
}

func TestStartCommandPromptsForContact(t *testing.T) {
	dir := newTestDirectory(t)
	api := &fakeAPI{batches: [][]telegram.Update{
		{textUpdate(10, 1001, "/start")},
	}}
	l := New(api, dir)

	require.NoError(t, l.cycle(context.Background()))

	sent := api.sentMessages()
	require.Len(t, sent, 1)
	require.NotNil(t, sent[0].opts.ReplyMarkup, "prompt must carry the contact keyboard")
	assert.True(t, sent[0].opts.ReplyMarkup.Keyboard[0][0].RequestContact)
	assert.Equal(t, 0, dir.Len(), "a /start alone must not register anything")
}

func TestPlainTextIgnored(t *testing.T) {
	dir := newTestDirectory(t)
	api := &fakeAPI{batches: [][]telegram.Update{
		{textUpdate(10, 1001, "hello there")},
	}}
	l := New(api, dir)

	require.NoError(t, l.cycle(context.Background()))
	assert.Empty(t, api.sentMessages())
	assert.Equal(t, 0, dir.Len())
}

func TestContactWithoutPhoneIgnored(t *testing.T) {
	dir := newTestDirectory(t)
	api := &fakeAPI{batches: [][]telegram.Update{
		{contactUpdate(10, 1001, "", "")},
	}}
	l := New(api, dir)

	require.NoError(t, l.cycle(context.Background()))
	assert.Empty(t, api.sentMessages())
	assert.Equal(t, 0, dir.Len())
}

func TestOffsetAdvancesAcrossBatch(t *testing.T) {
	dir := newTestDirectory(t)
	api := &fakeAPI{batches: [][]telegram.Update{
		{
			textUpdate(10, 1001, "hi"),
			textUpdate(13, 1002, "hi"),
			textUpdate(12, 1003, "hi"),
		},
		{textUpdate(14, 1001, "hi")},
	}}
	l := New(api, dir)

	require.NoError(t, l.cycle(context.Background()))
	require.NoError(t, l.cycle(context.Background()))
	require.NoError(t, l.cycle(context.Background()))

	// First poll has no offset, the next two acknowledge the max seen id.
	assert.Equal(t, []int64{0, 14, 15}, api.offsets)
}

func TestRunSurvivesPollErrors(t *testing.T) {
	dir := newTestDirectory(t)
	api := &fakeAPI{
		pollErr: errors.New("telegram is down"),
		batches: [][]telegram.Update{
			{contactUpdate(10, 1001, "9876543210", "Asha")},
		},
	}
	l := New(api, dir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	// The failed cycle backs off for errorBackoff; the registration lands on
	// the cycle after it.
	deadline := time.After(errorBackoff + 2*time.Second)
	for dir.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("listener never recovered from the poll error")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on context cancel")
	}
}

func TestCycleRecoversPanic(t *testing.T) {
	dir := newTestDirectory(t)
	l := New(panickyAPI{}, dir)
	err := l.cycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

type panickyAPI struct{}

func (panickyAPI) GetUpdates(context.Context, int64, time.Duration) ([]telegram.Update, int64, error) {
	panic("boom")
}

func (panickyAPI) SendMessage(context.Context, int64, string, telegram.SendOptions) (int64, error) {
	return 0, nil
}
