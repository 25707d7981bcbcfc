package models

import (
	"strings"
	"time"
)

// DuplicateGroup is a set of an owner's files sharing a content hash.
type DuplicateGroup struct {
	ContentHash []byte
	Files       []StoredFile
}

// WastedBytes is the space reclaimable by keeping one copy of the group.
func (g DuplicateGroup) WastedBytes() int64 {
	if len(g.Files) < 2 {
		return 0
	}
	return g.Files[0].Size * int64(len(g.Files)-1)
}

// EarliestUpload is the upload time of the oldest member.
func (g DuplicateGroup) EarliestUpload() time.Time {
	var t time.Time
	for i, f := range g.Files {
		if i == 0 || f.UploadedAt.Before(t) {
			t = f.UploadedAt
		}
	}
	return t
}

type StorageSummary struct {
	Files      int64
	TotalBytes int64
}

type CategoryUsage struct {
	Category   string
	Files      int64
	TotalBytes int64
}

// Storage categories reported by the analytics service.
const (
	CategoryDocuments = "Documents"
	CategoryImages    = "Images"
	CategoryVideos    = "Videos"
	CategoryAudio     = "Audio"
	CategoryArchives  = "Archives"
	CategoryOther     = "Other"
)

var mimeCategories = map[string]string{
	"application/pdf":    CategoryDocuments,
	"application/msword": CategoryDocuments,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": CategoryDocuments,
	"text/plain":                   CategoryDocuments,
	"text/csv":                     CategoryDocuments,
	"image/jpeg":                   CategoryImages,
	"image/png":                    CategoryImages,
	"image/gif":                    CategoryImages,
	"image/webp":                   CategoryImages,
	"image/svg+xml":                CategoryImages,
	"video/mp4":                    CategoryVideos,
	"video/quicktime":              CategoryVideos,
	"video/webm":                   CategoryVideos,
	"video/x-matroska":             CategoryVideos,
	"audio/mpeg":                   CategoryAudio,
	"audio/wav":                    CategoryAudio,
	"audio/ogg":                    CategoryAudio,
	"application/zip":              CategoryArchives,
	"application/x-rar-compressed": CategoryArchives,
	"application/gzip":             CategoryArchives,
}

// CategoryOf maps a MIME type (parameters ignored) to its storage category.
func CategoryOf(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	if c, ok := mimeCategories[strings.ToLower(strings.TrimSpace(base))]; ok {
		return c
	}
	return CategoryOther
}
