package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "TEST:TOKEN")
}

func writeResult(t *testing.T, w http.ResponseWriter, result interface{}) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true,"result":` + string(raw) + `}`))
}

func TestGetUpdates(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		writeResult(t, w, []Update{
			{UpdateID: 41, Message: &Message{MessageID: 1, Chat: Chat{ID: 100}}},
			{UpdateID: 43, Message: &Message{MessageID: 2, Chat: Chat{ID: 100}}},
			{UpdateID: 42, Message: &Message{MessageID: 3, Chat: Chat{ID: 100}}},
		})
	})

	updates, next, err := client.GetUpdates(context.Background(), 40, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "/botTEST:TOKEN/getUpdates", gotPath)
	assert.Equal(t, []string{"40"}, gotQuery["offset"])
	assert.Equal(t, []string{"30"}, gotQuery["timeout"])
	assert.Equal(t, []string{`["message"]`}, gotQuery["allowed_updates"])
	assert.Len(t, updates, 3)
	assert.Equal(t, int64(44), next, "next offset must be max update id + 1")
}

func TestGetUpdates_emptyBatchKeepsOffset(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotContains(t, r.URL.RawQuery, "offset", "zero offset must be omitted")
		writeResult(t, w, []Update{})
	})

	updates, next, err := client.GetUpdates(context.Background(), 0, time.Second)
	require.NoError(t, err)
	assert.Empty(t, updates)
	assert.Equal(t, int64(0), next)
}

func TestSendMessage(t *testing.T) {
	var got sendMessageRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTEST:TOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeResult(t, w, Message{MessageID: 77, Chat: Chat{ID: 100}})
	})

	id, err := client.SendMessage(context.Background(), 100, "<b>hi</b>", SendOptions{
		Silent:      true,
		ReplyMarkup: ContactRequestKeyboard(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)
	assert.Equal(t, int64(100), got.ChatID)
	assert.Equal(t, "<b>hi</b>", got.Text)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.True(t, got.DisableNotification)
	require.NotNil(t, got.ReplyMarkup)
	require.Len(t, got.ReplyMarkup.Keyboard, 1)
	assert.True(t, got.ReplyMarkup.Keyboard[0][0].RequestContact)
}

func TestSendDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("document body"), 0o644))

	var fields map[string]string
	var uploaded []byte
	var uploadedName string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTEST:TOKEN/sendDocument", r.URL.Path)
		reader, err := r.MultipartReader()
		require.NoError(t, err)
		fields = make(map[string]string)
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			data, err := io.ReadAll(part)
			require.NoError(t, err)
			if part.FormName() == "document" {
				uploaded = data
				uploadedName = part.FileName()
			} else {
				fields[part.FormName()] = string(data)
			}
		}
		writeResult(t, w, Message{
			MessageID: 9,
			Chat:      Chat{ID: 555},
			Document:  &Document{FileID: "FILE-1", FileSize: 13},
		})
	})

	msg, err := client.SendDocument(context.Background(), 555, path, "notes.txt", "📁 notes.txt\n👤 +919876543210")
	require.NoError(t, err)
	require.NotNil(t, msg.Document)
	assert.Equal(t, "FILE-1", msg.Document.FileID)
	assert.Equal(t, int64(9), msg.MessageID)

	assert.Equal(t, "555", fields["chat_id"])
	assert.Equal(t, "📁 notes.txt\n👤 +919876543210", fields["caption"])
	assert.Equal(t, "true", fields["disable_notification"])
	assert.Equal(t, "notes.txt", uploadedName)
	assert.Equal(t, "document body", string(uploaded))
}

func TestGetFileURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTEST:TOKEN/getFile", r.URL.Path)
		assert.Equal(t, "FILE-1", r.URL.Query().Get("file_id"))
		writeResult(t, w, fileResult{FileID: "FILE-1", FilePath: "documents/file_0.txt"})
	})

	url, err := client.GetFileURL(context.Background(), "FILE-1")
	require.NoError(t, err)
	assert.True(t, len(url) > 0)
	assert.Contains(t, url, "/file/botTEST:TOKEN/documents/file_0.txt")
}

func TestGetFileURL_missingPath(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, fileResult{FileID: "FILE-1"})
	})
	_, err := client.GetFileURL(context.Background(), "FILE-1")
	assert.Error(t, err)
}

func TestDeleteMessage(t *testing.T) {
	var got deleteMessageRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTEST:TOKEN/deleteMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	})

	require.NoError(t, client.DeleteMessage(context.Background(), 100, 9))
	assert.Equal(t, int64(100), got.ChatID)
	assert.Equal(t, int64(9), got.MessageID)
}

func TestRequestError_okFalse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
	})

	_, err := client.SendMessage(context.Background(), 100, "hi", SendOptions{})
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusBadRequest, reqErr.StatusCode)
	assert.Equal(t, 400, reqErr.ErrorCode)
	assert.Contains(t, reqErr.Error(), "chat not found")
}

func TestRequestError_okFalseWith200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	})

	_, err := client.SendMessage(context.Background(), 100, "hi", SendOptions{})
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 403, reqErr.ErrorCode)
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, IsTimeout(nil))
	assert.False(t, IsTimeout(errors.New("boom")))
	assert.True(t, IsTimeout(context.DeadlineExceeded))

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeResult(t, w, []Update{})
	})
	_, _, err := client.GetUpdates(ctx, 0, time.Second)
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "context deadline during poll should classify as timeout: %v", err)
}
