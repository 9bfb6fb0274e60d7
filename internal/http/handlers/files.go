package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/virangk414141/vimesta2/internal/middleware"
	"github.com/virangk414141/vimesta2/internal/model"
	"github.com/virangk414141/vimesta2/internal/repo"
	"github.com/virangk414141/vimesta2/internal/storage"
)

// FileHandler handles file endpoints backed by the hidden Telegram storage.
type FileHandler struct {
	vault     *storage.Vault
	urls      *storage.URLCache
	files     repo.FileRepo
	users     repo.UserRepo
	uploadDir string
	maxBytes  int64
}

// NewFileHandler creates a new file handler
func NewFileHandler(vault *storage.Vault, urls *storage.URLCache, files repo.FileRepo, users repo.UserRepo, uploadDir string, maxBytes int64) *FileHandler {
	return &FileHandler{
		vault:     vault,
		urls:      urls,
		files:     files,
		users:     users,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
	}
}

type fileResponse struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	FileSize         int64  `json:"file_size"`
	FileSizeReadable string `json:"file_size_formatted"`
	FileType         string `json:"file_type"`
	MimeType         string `json:"mime_type,omitempty"`
	UploadDate       string `json:"upload_date"`
	IsPublic         bool   `json:"is_public"`
	PublicLinkHash   string `json:"public_link_hash,omitempty"`
	DownloadCount    int    `json:"download_count"`
	PreviewURL       string `json:"preview_url,omitempty"`
}

func fileToResponse(f model.File) fileResponse {
	resp := fileResponse{
		ID:               f.ID.String(),
		OriginalFilename: f.OriginalFilename,
		FileSize:         f.FileSize,
		FileSizeReadable: storage.FormatSize(f.FileSize),
		FileType:         f.FileType,
		MimeType:         f.MimeType,
		UploadDate:       f.UploadDate.Format("2006-01-02T15:04:05Z07:00"),
		IsPublic:         f.IsPublic,
		DownloadCount:    f.DownloadCount,
	}
	if f.PublicLinkHash != nil {
		resp.PublicLinkHash = *f.PublicLinkHash
	}
	return resp
}

// HandleUpload handles POST /api/files/upload (multipart "file" field). The
// upload is spooled to a local temp file, pushed into the hidden storage,
// recorded, and the temp file is removed no matter the outcome.
func (h *FileHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	src, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer src.Close()

	if header.Filename == "" {
		respondWithError(w, http.StatusBadRequest, "filename is required")
		return
	}

	tmpPath := filepath.Join(h.uploadDir, uuid.NewString()+"_"+filepath.Base(header.Filename))
	dst, err := os.Create(tmpPath)
	if err != nil {
		log.Printf("create upload temp file: %v", err)
		respondWithError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	size, err := io.Copy(dst, src)
	closeErr := dst.Close()
	if err != nil || closeErr != nil {
		os.Remove(tmpPath)
		log.Printf("spool upload: copy=%v close=%v", err, closeErr)
		respondWithError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	defer os.Remove(tmpPath)

	receipt, err := h.vault.Upload(r.Context(), tmpPath, header.Filename, user.TelegramID, user.PhoneNumber)
	if err != nil {
		if errors.Is(err, storage.ErrNoStorageConfigured) {
			respondWithError(w, http.StatusServiceUnavailable, "storage not configured")
			return
		}
		log.Printf("hidden upload failed: %v", err)
		respondWithError(w, http.StatusBadGateway, "upload to storage failed")
		return
	}
	if receipt.Size == 0 {
		receipt.Size = size
	}

	fileType := storage.FileTypeOf(header.Filename)
	mimeType := mime.TypeByExtension(filepath.Ext(header.Filename))
	record, err := h.files.Create(r.Context(), model.File{
		UserID:            user.ID,
		TelegramFileID:    receipt.FileID,
		TelegramMessageID: receipt.MessageID,
		OriginalFilename:  header.Filename,
		FileSize:          receipt.Size,
		FileType:          fileType,
		MimeType:          mimeType,
	})
	if err != nil {
		log.Printf("create file record: %v", err)
		respondWithError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	if err := h.users.AddStorageUsed(r.Context(), user.ID, receipt.Size); err != nil {
		log.Printf("update storage used: %v", err)
	}

	resp := fileToResponse(record)
	if fileType == "image" {
		if url, err := h.urls.Resolve(r.Context(), receipt.FileID); err == nil {
			resp.PreviewURL = url
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"file": resp})
}

// HandleList handles GET /api/files?type=image
func (h *FileHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	files, err := h.files.ListByUser(r.Context(), user.ID, r.URL.Query().Get("type"))
	if err != nil {
		log.Printf("list files: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to list files")
		return
	}

	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		resp := fileToResponse(f)
		if f.FileType == "image" {
			if url, err := h.urls.Resolve(r.Context(), f.TelegramFileID); err == nil {
				resp.PreviewURL = url
			}
		}
		out = append(out, resp)
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"files": out, "count": len(out)})
}

// HandleDownload handles GET /api/files/{id}/download
func (h *FileHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	f, err := h.files.GetOwned(r.Context(), id, user.ID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "file not found")
		return
	}

	url, err := h.urls.Resolve(r.Context(), f.TelegramFileID)
	if err != nil {
		respondWithError(w, http.StatusServiceUnavailable, "file temporarily unavailable")
		return
	}

	if err := h.files.IncrementDownloads(r.Context(), f.ID); err != nil {
		log.Printf("increment downloads: %v", err)
	}
	respondWithJSON(w, http.StatusOK, map[string]string{
		"download_url": url,
		"filename":     f.OriginalFilename,
	})
}

// HandleDelete handles DELETE /api/files/{id}. The metadata record is the
// source of truth; removal of the underlying chat message is best effort.
func (h *FileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	f, err := h.files.GetOwned(r.Context(), id, user.ID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "file not found")
		return
	}

	if f.TelegramMessageID != 0 {
		h.vault.Delete(r.Context(), f.TelegramMessageID)
	}
	h.urls.Invalidate(f.TelegramFileID)

	if err := h.files.Delete(r.Context(), f.ID); err != nil {
		log.Printf("delete file record: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to delete file")
		return
	}
	if err := h.users.AddStorageUsed(r.Context(), user.ID, -f.FileSize); err != nil {
		log.Printf("update storage used: %v", err)
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// HandleShare handles POST /api/files/{id}/share
func (h *FileHandler) HandleShare(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	f, err := h.files.GetOwned(r.Context(), id, user.ID)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "file not found")
		return
	}

	hash := ""
	if f.PublicLinkHash != nil {
		hash = *f.PublicLinkHash
	} else {
		hash, err = shareHash()
		if err != nil {
			log.Printf("generate share hash: %v", err)
			respondWithError(w, http.StatusInternalServerError, "failed to share file")
			return
		}
	}
	if err := h.files.MarkShared(r.Context(), f.ID, hash); err != nil {
		log.Printf("mark shared: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to share file")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"share_link": "/share/" + hash})
}

// HandlePublicFile handles GET /share/{hash} (no auth)
func (h *FileHandler) HandlePublicFile(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	f, err := h.files.GetByPublicHash(r.Context(), hash)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "file not found")
		return
	}

	url, err := h.urls.Resolve(r.Context(), f.TelegramFileID)
	if err != nil {
		respondWithError(w, http.StatusServiceUnavailable, "file temporarily unavailable")
		return
	}
	if err := h.files.IncrementDownloads(r.Context(), f.ID); err != nil {
		log.Printf("increment downloads: %v", err)
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"file": map[string]interface{}{
			"filename":     f.OriginalFilename,
			"size":         f.FileSize,
			"download_url": url,
		},
	})
}

// HandleStorageStats handles GET /api/user/storage
func (h *FileHandler) HandleStorageStats(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.files.StatsByUser(r.Context(), user.ID)
	if err != nil {
		log.Printf("storage stats: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to load storage stats")
		return
	}

	byType := make(map[string]map[string]interface{}, len(stats))
	totalFiles := 0
	for _, s := range stats {
		totalFiles += s.Count
		byType[s.FileType] = map[string]interface{}{"count": s.Count, "size": s.Size}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"storage": map[string]interface{}{
			"total_files":          totalFiles,
			"total_size":           user.StorageUsed,
			"total_size_formatted": storage.FormatSize(user.StorageUsed),
			"by_type":              byType,
		},
	})
}

// shareHash returns a 16-hex-char random public link hash.
func shareHash() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}
