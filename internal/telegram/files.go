package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/telecloud/internal/media"
)

// FileRef is the file-bearing part of a Telegram message.
type FileRef struct {
	Class        media.Class
	FileID       string
	FileUniqueID string
	FileName     string
	MimeType     string
	FileSize     int64
}

// ExtractFile returns the first file carried by msg, inspecting document,
// photo, video, audio, voice, animation, sticker and video note in that order.
func ExtractFile(msg *tgbotapi.Message) (FileRef, bool) {
	if msg == nil {
		return FileRef{}, false
	}
	for _, class := range extractOrder {
		if ref, ok := fileForClass(msg, class); ok {
			return ref, true
		}
	}
	return FileRef{}, false
}

var extractOrder = []media.Class{
	media.ClassDocument,
	media.ClassImage,
	media.ClassVideo,
	media.ClassAudio,
	media.ClassVoice,
	media.ClassAnimation,
	media.ClassSticker,
	media.ClassVideoNote,
}

func fileForClass(msg *tgbotapi.Message, class media.Class) (FileRef, bool) {
	var ref FileRef
	switch class {
	case media.ClassDocument:
		if msg.Document == nil {
			return FileRef{}, false
		}
		d := msg.Document
		ref = FileRef{FileID: d.FileID, FileUniqueID: d.FileUniqueID, FileName: d.FileName, MimeType: d.MimeType, FileSize: int64(d.FileSize)}
	case media.ClassImage:
		photo, ok := PickLargestPhoto(msg.Photo)
		if !ok {
			return FileRef{}, false
		}
		ref = FileRef{FileID: photo.FileID, FileUniqueID: photo.FileUniqueID, FileSize: int64(photo.FileSize)}
	case media.ClassVideo:
		if msg.Video == nil {
			return FileRef{}, false
		}
		v := msg.Video
		ref = FileRef{FileID: v.FileID, FileUniqueID: v.FileUniqueID, FileName: v.FileName, MimeType: v.MimeType, FileSize: int64(v.FileSize)}
	case media.ClassAudio:
		if msg.Audio == nil {
			return FileRef{}, false
		}
		a := msg.Audio
		ref = FileRef{FileID: a.FileID, FileUniqueID: a.FileUniqueID, FileName: a.FileName, MimeType: a.MimeType, FileSize: int64(a.FileSize)}
	case media.ClassVoice:
		if msg.Voice == nil {
			return FileRef{}, false
		}
		v := msg.Voice
		ref = FileRef{FileID: v.FileID, FileUniqueID: v.FileUniqueID, MimeType: v.MimeType, FileSize: int64(v.FileSize)}
	case media.ClassAnimation:
		if msg.Animation == nil {
			return FileRef{}, false
		}
		a := msg.Animation
		ref = FileRef{FileID: a.FileID, FileUniqueID: a.FileUniqueID, FileName: a.FileName, MimeType: a.MimeType, FileSize: int64(a.FileSize)}
	case media.ClassSticker:
		if msg.Sticker == nil {
			return FileRef{}, false
		}
		s := msg.Sticker
		ref = FileRef{FileID: s.FileID, FileUniqueID: s.FileUniqueID, FileSize: int64(s.FileSize)}
		if s.IsAnimated {
			ref.MimeType = "application/x-tgsticker"
		}
	case media.ClassVideoNote:
		if msg.VideoNote == nil {
			return FileRef{}, false
		}
		v := msg.VideoNote
		ref = FileRef{FileID: v.FileID, FileUniqueID: v.FileUniqueID, FileSize: int64(v.FileSize)}
	default:
		return FileRef{}, false
	}
	if strings.TrimSpace(ref.FileID) == "" {
		return FileRef{}, false
	}
	ref.Class = class
	ref.FileName = strings.TrimSpace(ref.FileName)
	ref.MimeType = strings.TrimSpace(ref.MimeType)
	if ref.MimeType == "" {
		ref.MimeType = media.DefaultMime(class)
	}
	return ref, true
}

// PickLargestPhoto selects the highest resolution from a photo size array.
// Ties go to the later entry, matching Telegram's ascending order.
func PickLargestPhoto(items []tgbotapi.PhotoSize) (tgbotapi.PhotoSize, bool) {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}, false
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.Width*item.Height >= best.Width*best.Height {
			best = item
		}
	}
	return best, true
}
