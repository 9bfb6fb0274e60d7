package tests

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeTelegram is an in-process stand-in for the Bot API covering the methods
// the service calls: sendMessage, sendDocument, getFile, deleteMessage, plus
// the file download path.
type fakeTelegram struct {
	mu        sync.Mutex
	nextMsgID int64
	nextFile  int
	messages  map[int64][]string // chat id -> sent texts
	files     map[string][]byte  // file id -> uploaded content
	deleted   []int64

	Server *httptest.Server
}

func newFakeTelegram(t *testing.T) *fakeTelegram {
	t.Helper()
	f := &fakeTelegram{
		nextMsgID: 1,
		messages:  make(map[int64][]string),
		files:     make(map[string][]byte),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", f.handle)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

func (f *fakeTelegram) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		f.handleSendMessage(w, r)
	case strings.HasSuffix(r.URL.Path, "/sendDocument"):
		f.handleSendDocument(w, r)
	case strings.HasSuffix(r.URL.Path, "/getFile"):
		f.handleGetFile(w, r)
	case strings.HasSuffix(r.URL.Path, "/deleteMessage"):
		f.handleDeleteMessage(w, r)
	case strings.Contains(r.URL.Path, "/file/bot"):
		f.handleDownload(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"ok":false,"error_code":404,"description":"method not found: %s"}`, r.URL.Path)
	}
}

func (f *fakeTelegram) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChatID int64  `json:"chat_id"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTelegramError(w, 400, "bad request")
		return
	}
	f.mu.Lock()
	id := f.nextMsgID
	f.nextMsgID++
	f.messages[req.ChatID] = append(f.messages[req.ChatID], req.Text)
	f.mu.Unlock()
	writeTelegramResult(w, map[string]interface{}{
		"message_id": id,
		"chat":       map[string]interface{}{"id": req.ChatID},
		"text":       req.Text,
	})
}

func (f *fakeTelegram) handleSendDocument(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		writeTelegramError(w, 400, "expected multipart body")
		return
	}
	var chatID int64
	var content []byte
	var filename string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeTelegramError(w, 400, "bad multipart body")
			return
		}
		data, _ := io.ReadAll(part)
		switch part.FormName() {
		case "chat_id":
			chatID, _ = strconv.ParseInt(string(data), 10, 64)
		case "document":
			content = data
			filename = part.FileName()
		}
	}
	f.mu.Lock()
	id := f.nextMsgID
	f.nextMsgID++
	f.nextFile++
	fileID := fmt.Sprintf("FAKE-FILE-%d", f.nextFile)
	f.files[fileID] = content
	f.mu.Unlock()
	writeTelegramResult(w, map[string]interface{}{
		"message_id": id,
		"chat":       map[string]interface{}{"id": chatID},
		"document": map[string]interface{}{
			"file_id":   fileID,
			"file_name": filename,
			"file_size": len(content),
		},
	})
}

func (f *fakeTelegram) handleGetFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("file_id")
	f.mu.Lock()
	_, ok := f.files[fileID]
	f.mu.Unlock()
	if !ok {
		writeTelegramError(w, 400, "invalid file_id")
		return
	}
	writeTelegramResult(w, map[string]interface{}{
		"file_id":   fileID,
		"file_path": "documents/" + fileID,
	})
}

func (f *fakeTelegram) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageID int64 `json:"message_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.deleted = append(f.deleted, req.MessageID)
	f.mu.Unlock()
	writeTelegramResult(w, true)
}

func (f *fakeTelegram) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.mu.Lock()
	content, ok := f.files[fileID]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_, _ = w.Write(content)
}

// lastMessage returns the most recent text sent to the chat, if any.
func (f *fakeTelegram) lastMessage(chatID int64) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[chatID]
	if len(msgs) == 0 {
		return "", false
	}
	return msgs[len(msgs)-1], true
}

func writeTelegramResult(w http.ResponseWriter, result interface{}) {
	raw, _ := json.Marshal(result)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"ok":true,"result":%s}`, raw)
}

func writeTelegramError(w http.ResponseWriter, code int, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	raw, _ := json.Marshal(description)
	fmt.Fprintf(w, `{"ok":false,"error_code":%d,"description":%s}`, code, raw)
}
