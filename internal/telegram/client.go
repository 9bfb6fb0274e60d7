package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Client is a minimal Telegram Bot API client covering the operations the
// storage and auth flows need: long-polling, direct messages, document
// uploads, file resolution, and message deletion.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

// NewClient creates a Bot API client. A nil httpClient gets a client without
// a global timeout; every call is expected to carry a context deadline.
func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// Update is a single entry from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is the subset of the Bot API message object this service reads.
type Message struct {
	MessageID int64     `json:"message_id"`
	Date      int64     `json:"date,omitempty"`
	Chat      Chat      `json:"chat"`
	From      *User     `json:"from,omitempty"`
	Text      string    `json:"text,omitempty"`
	Contact   *Contact  `json:"contact,omitempty"`
	Document  *Document `json:"document,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Contact is a shared phone contact.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
}

type Document struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
}

// ReplyKeyboard is a reply_markup keyboard, used for the share-contact prompt.
type ReplyKeyboard struct {
	Keyboard        [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool               `json:"one_time_keyboard,omitempty"`
}

type KeyboardButton struct {
	Text           string `json:"text"`
	RequestContact bool   `json:"request_contact,omitempty"`
}

// ContactRequestKeyboard returns the one-tap share-phone keyboard.
func ContactRequestKeyboard() *ReplyKeyboard {
	return &ReplyKeyboard{
		Keyboard:        [][]KeyboardButton{{{Text: "📱 Share Phone", RequestContact: true}}},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}

// SendOptions tweaks sendMessage behavior.
type SendOptions struct {
	// Silent sets disable_notification.
	Silent bool
	// ReplyMarkup, when non-nil, is attached as reply_markup.
	ReplyMarkup *ReplyKeyboard
}

// RequestError is a non-OK answer from the Bot API, either at the HTTP level
// or an ok=false body with an error description.
type RequestError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *RequestError) Error() string {
	desc := strings.TrimSpace(e.Description)
	switch {
	case desc != "" && e.StatusCode > 0:
		return fmt.Sprintf("telegram http %d: %s", e.StatusCode, desc)
	case desc != "":
		return "telegram: " + desc
	case e.StatusCode > 0:
		return fmt.Sprintf("telegram http %d", e.StatusCode)
	default:
		return "telegram request failed"
	}
}

type apiEnvelope struct {
	OK          bool            `json:"ok"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

func (c *Client) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, name)
}

// do runs the request and decodes the API envelope into result (if non-nil).
func (c *Client) do(req *http.Request, result interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()

	var env apiEnvelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := &RequestError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			e.ErrorCode = env.ErrorCode
			e.Description = env.Description
		} else {
			e.Description = strings.TrimSpace(string(raw))
		}
		return e
	}
	if decodeErr != nil {
		return fmt.Errorf("decode telegram response: %w", decodeErr)
	}
	if !env.OK {
		return &RequestError{ErrorCode: env.ErrorCode, Description: env.Description}
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("decode telegram result: %w", err)
		}
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, name string, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.method(name), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

// GetUpdates long-polls for updates at or after offset, holding the request
// open up to timeout. It returns the batch and the next offset to poll with
// (max update id seen + 1, or the unchanged offset on an empty batch).
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	u := fmt.Sprintf("%s?timeout=%d&allowed_updates=%s", c.method("getUpdates"), secs, url.QueryEscape(`["message"]`))
	if offset > 0 {
		u += "&offset=" + strconv.FormatInt(offset, 10)
	}

	// The network deadline sits a bit above the long-poll hold time.
	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, offset, err
	}

	var updates []Update
	if err := c.do(req, &updates); err != nil {
		return nil, offset, err
	}
	next := offset
	for _, upd := range updates {
		if upd.UpdateID >= next {
			next = upd.UpdateID + 1
		}
	}
	return updates, next, nil
}

type sendMessageRequest struct {
	ChatID              int64          `json:"chat_id"`
	Text                string         `json:"text"`
	ParseMode           string         `json:"parse_mode,omitempty"`
	DisableNotification bool           `json:"disable_notification,omitempty"`
	ReplyMarkup         *ReplyKeyboard `json:"reply_markup,omitempty"`
}

// SendMessage sends an HTML-formatted direct message and returns its id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) (int64, error) {
	var msg Message
	err := c.postJSON(ctx, "sendMessage", sendMessageRequest{
		ChatID:              chatID,
		Text:                text,
		ParseMode:           "HTML",
		DisableNotification: opts.Silent,
		ReplyMarkup:         opts.ReplyMarkup,
	}, &msg)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendDocument uploads the file at path to chatID as a silent document with
// the given filename and caption, and returns the resulting message. The file
// is streamed, never buffered whole.
func (c *Client) SendDocument(ctx context.Context, chatID int64, path, filename, caption string) (*Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	if filename = strings.TrimSpace(filename); filename == "" {
		filename = "file"
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mw.Close()

		_ = mw.WriteField("chat_id", strconv.FormatInt(chatID, 10))
		if caption != "" {
			_ = mw.WriteField("caption", caption)
		}
		_ = mw.WriteField("disable_notification", "true")

		part, err := mw.CreateFormFile("document", filename)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.method("sendDocument"), pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var msg Message
	if err := c.do(req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

type fileResult struct {
	FileID   string `json:"file_id"`
	FileSize int64  `json:"file_size,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

// GetFileURL resolves a file handle into a time-limited download URL.
func (c *Client) GetFileURL(ctx context.Context, fileID string) (string, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return "", fmt.Errorf("missing file_id")
	}
	u := c.method("getFile") + "?file_id=" + url.QueryEscape(fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	var out fileResult
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.FilePath) == "" {
		return "", fmt.Errorf("telegram getFile: missing file_path")
	}
	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, strings.TrimLeft(out.FilePath, "/")), nil
}

type deleteMessageRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// DeleteMessage removes a message from a chat.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.postJSON(ctx, "deleteMessage", deleteMessageRequest{ChatID: chatID, MessageID: messageID}, nil)
}

// IsTimeout reports whether err looks like a poll or request deadline, as
// opposed to a real API failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
