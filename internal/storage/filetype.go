package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileTypeOf classifies a filename by extension into a coarse type class
// used for listing filters and storage stats.
func FileTypeOf(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case "jpg", "jpeg", "png", "gif", "bmp", "webp", "svg", "ico":
		return "image"
	case "mp4", "avi", "mkv", "mov", "webm", "flv", "3gp":
		return "video"
	case "mp3", "wav", "ogg", "flac", "m4a", "aac":
		return "audio"
	case "pdf", "doc", "docx", "txt", "xlsx", "xls", "pptx", "ppt", "csv":
		return "document"
	default:
		return "other"
	}
}

// FormatSize renders a byte count for humans.
func FormatSize(size int64) string {
	n := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if n < 1024 {
			return fmt.Sprintf("%.1f %s", n, unit)
		}
		n /= 1024
	}
	return fmt.Sprintf("%.1f TB", n)
}
