package media

import (
	"path"
	"strings"
)

// Class is the closed set of media kinds that decides which Telegram send
// method and size ceiling apply to an object.
type Class string

const (
	ClassDocument  Class = "document"
	ClassImage     Class = "image"
	ClassVideo     Class = "video"
	ClassAudio     Class = "audio"
	ClassVoice     Class = "voice"
	ClassAnimation Class = "animation"
	ClassSticker   Class = "sticker"
	ClassVideoNote Class = "video_note"
	ClassUnknown   Class = "unknown"
)

func (c Class) String() string { return string(c) }

// Valid reports whether c belongs to the closed class set.
func (c Class) Valid() bool {
	switch c {
	case ClassDocument, ClassImage, ClassVideo, ClassAudio, ClassVoice,
		ClassAnimation, ClassSticker, ClassVideoNote, ClassUnknown:
		return true
	}
	return false
}

// ParseClass maps a stored value back to a Class; unknown strings become ClassUnknown.
func ParseClass(raw string) Class {
	c := Class(strings.ToLower(strings.TrimSpace(raw)))
	if c.Valid() {
		return c
	}
	return ClassUnknown
}

var (
	imageExts = map[string]struct{}{".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".bmp": {}}
	videoExts = map[string]struct{}{".mp4": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".webm": {}, ".m4v": {}}
	audioExts = map[string]struct{}{".mp3": {}, ".wav": {}, ".ogg": {}, ".oga": {}, ".m4a": {}, ".flac": {}, ".aac": {}, ".opus": {}}
)

// ClassifyUpload decides the send class for a caller-provided payload.
// The declared MIME prefix wins; the filename extension is consulted only
// when the MIME type says nothing about the media kind. Everything else is
// sent as a document.
func ClassifyUpload(mime, name string) Class {
	switch {
	case strings.HasPrefix(normalizeMime(mime), "image/"):
		return ClassImage
	case strings.HasPrefix(normalizeMime(mime), "video/"):
		return ClassVideo
	case strings.HasPrefix(normalizeMime(mime), "audio/"):
		return ClassAudio
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(name)))
	if _, ok := videoExts[ext]; ok {
		return ClassVideo
	}
	if _, ok := imageExts[ext]; ok {
		return ClassImage
	}
	if _, ok := audioExts[ext]; ok {
		return ClassAudio
	}
	return ClassDocument
}

// DefaultMime is the MIME type assumed for a class when the platform does
// not report one.
func DefaultMime(c Class) string {
	switch c {
	case ClassImage:
		return "image/jpeg"
	case ClassVideo, ClassAnimation, ClassVideoNote:
		return "video/mp4"
	case ClassAudio:
		return "audio/mpeg"
	case ClassVoice:
		return "audio/ogg"
	case ClassSticker:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

var mimeExts = map[string]string{
	"image/jpeg":              "jpg",
	"image/png":               "png",
	"image/gif":               "gif",
	"image/webp":              "webp",
	"video/mp4":               "mp4",
	"video/webm":              "webm",
	"video/quicktime":         "mov",
	"audio/mpeg":              "mp3",
	"audio/ogg":               "ogg",
	"audio/mp4":               "m4a",
	"audio/x-wav":             "wav",
	"application/pdf":         "pdf",
	"application/zip":         "zip",
	"application/json":        "json",
	"text/plain":              "txt",
	"application/x-tgsticker": "tgs",
}

// InferExtension returns an extension without the leading dot for a class,
// preferring the reported MIME type.
func InferExtension(c Class, mime string) string {
	if ext, ok := mimeExts[normalizeMime(mime)]; ok {
		return ext
	}
	switch c {
	case ClassImage:
		return "jpg"
	case ClassVideo, ClassAnimation, ClassVideoNote:
		return "mp4"
	case ClassAudio:
		return "mp3"
	case ClassVoice:
		return "ogg"
	case ClassSticker:
		return "webp"
	default:
		return "bin"
	}
}

func normalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}

// NormalizeMime lowercases mime and strips parameters.
func NormalizeMime(mime string) string {
	return normalizeMime(mime)
}
