package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/utils/platformerrors"
)

// MaxReplyLength is the longest text a single Telegram message may carry.
const MaxReplyLength = 4096

const historyDateLayout = "2006-01-02 15:04:05"

const (
	ProcessingText = "Processing your image... 🔄\nThis might take a few seconds..."

	helpText = "Here's what I can do:\n\n" +
		"📷 Send me a photo or an image file and I'll upload it and reply with a public link.\n" +
		"/history shows your uploads, most recent first (/list works too).\n" +
		"/delete <id or link> removes one of your uploads.\n" +
		"/help shows this message."

	unknownText         = "Sorry, I didn't understand that. Send me an image, or use /help to see what I can do."
	unsupportedFileText = "I can only store images. Please send a photo or an image file."
	emptyHistoryText    = "You haven't uploaded any images yet! 📭"
	deleteUsageText     = "Tell me which upload to delete, e.g. /delete 1234 or /delete <link>.\nUse /history to see your uploads."
	deleteNotFoundText  = "I couldn't find an upload with that id among yours. Use /history to see your uploads."
	genericErrorText    = "Sorry, something went wrong. Please try again later."
)

func welcomeText(name string) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s! 👋\n\n"+
		"I can help you store images and generate public links.\n"+
		"Just send me any image and I'll upload it for you.\n"+
		"Use /history to see your previously uploaded images.", name)
}

func uploadedText(rec *upload.UploadRecord) string {
	var b strings.Builder
	b.WriteString("✅ Image uploaded successfully!\n\n")
	fmt.Fprintf(&b, "🔗 Here's your link:\n%s\n\n", rec.Location)
	if rec.LocalID != "" {
		fmt.Fprintf(&b, "🆔 %s (use /delete %s to remove it)\n", rec.LocalID, rec.LocalID)
	}
	b.WriteString("Use /history to see all your uploads.")
	return b.String()
}

func deletedText(res *upload.DeleteResult) string {
	label := res.Record.LocalID
	if label == "" {
		label = res.Record.Location
	}
	text := fmt.Sprintf("🗑 Upload %s deleted.", label)
	if res.BytesErr != nil {
		text += "\nThe stored file itself could not be removed right now."
	}
	return text
}

// historyText renders records newest first, dropping the oldest entries
// when the reply would exceed MaxReplyLength.
func historyText(records []upload.UploadRecord, loc *time.Location) string {
	const header = "🗂 Your upload history:\n\n"

	var b strings.Builder
	b.WriteString(header)
	for i, rec := range records {
		entry := historyEntry(rec, loc)
		remaining := len(records) - i - 1
		footer := ""
		if remaining > 0 {
			footer = moreText(remaining)
		}
		if b.Len()+len(entry)+len(footer) > MaxReplyLength {
			b.WriteString(moreText(len(records) - i))
			return strings.TrimRight(b.String(), "\n")
		}
		b.WriteString(entry)
	}
	return strings.TrimRight(b.String(), "\n")
}

func historyEntry(rec upload.UploadRecord, loc *time.Location) string {
	date := rec.CreatedAt.In(loc).Format(historyDateLayout)
	if rec.LocalID != "" {
		return fmt.Sprintf("📅 %s · 🆔 %s\n🔗 %s\n\n", date, rec.LocalID, rec.Location)
	}
	return fmt.Sprintf("📅 %s\n🔗 %s\n\n", date, rec.Location)
}

func moreText(n int) string {
	return fmt.Sprintf("…and %d older upload(s).", n)
}

// errorText maps an error to the fixed text shown to the user.
// Raw error text never reaches a reply.
func errorText(intent Intent, err error) string {
	switch platformerrors.TypeOf(err) {
	case platformerrors.ErrorTypeNotFound:
		return deleteNotFoundText
	case platformerrors.ErrorTypeTransport:
		return "I couldn't download your image from Telegram. 😕\nPlease send it again."
	case platformerrors.ErrorTypeValidation:
		return "That image looks empty. Please send it again."
	case platformerrors.ErrorTypeStorageBackend:
		if intent == IntentDelete {
			return genericErrorText
		}
		return "Sorry, there was an error processing your image. 😕\nPlease try again later or contact support if the problem persists."
	case platformerrors.ErrorTypeMetadataWrite:
		switch intent {
		case IntentList:
			return "Sorry, there was an error retrieving your history. Please try again later."
		case IntentDelete:
			return "Sorry, I couldn't delete that upload right now. Please try again later."
		}
		return "Your image could not be saved right now. 😕\nPlease try again later."
	default:
		return genericErrorText
	}
}
