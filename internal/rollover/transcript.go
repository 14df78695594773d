package rollover

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lewisedginton/memory_engine/internal/storage_manager"
)

const (
	statePath        = "state.json"
	livePath         = "live.txt"
	earlierTodayPath = "earlier_today.txt"
	archivePrefix    = "archive/"
	summaryPrefix    = "summaries/"
)

func readText(ctx context.Context, files storage_manager.FileProvider, path string) (string, error) {
	data, err := files.Read(ctx, path)
	if errors.Is(err, storage_manager.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TranscriptLine formats one utterance of the live transcript.
func TranscriptLine(speaker, text string) string {
	return speaker + ": " + strings.TrimSpace(text) + "\n"
}

// conversationNumber names an archive after the moment it was taken.
func conversationNumber(at time.Time) string {
	return at.Format("01022006150405")
}

// ArchiveKey returns archive/{MMDDYYYY}/{MMDDYYYYhhmmss}.txt for at.
func ArchiveKey(at time.Time) string {
	return archivePrefix + at.Format("01022006") + "/" + conversationNumber(at) + ".txt"
}

// summaryMetaKey places summary metadata next to its archive.
func summaryMetaKey(archiveKey string) string {
	return strings.TrimSuffix(archiveKey, ".txt") + "_summary.json"
}

// freeArchiveKey avoids overwriting an archive taken in the same second.
func freeArchiveKey(ctx context.Context, files storage_manager.FileProvider, at time.Time) (string, error) {
	key := ArchiveKey(at)
	base := strings.TrimSuffix(key, ".txt")
	for n := 2; ; n++ {
		taken, err := files.Exists(ctx, key)
		if err != nil {
			return "", err
		}
		if !taken {
			return key, nil
		}
		if n > 100 {
			return "", fmt.Errorf("no free archive key for %s", base)
		}
		key = fmt.Sprintf("%s-%d.txt", base, n)
	}
}

// keepTail trims s from the front to at most limit runes, starting at a word
// boundary when one is available.
func keepTail(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	tail := string(runes[len(runes)-limit:])
	if i := strings.IndexByte(tail, ' '); i >= 0 && i < len(tail)-1 {
		tail = tail[i+1:]
	}
	return tail
}
