// Package checkpoint persists conversation threads between runs.
package checkpoint

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ChamsBouzaiene/stagehand/internal/engine"
)

// ErrThreadNotFound is returned when a thread id has no checkpoint.
var ErrThreadNotFound = errors.New("thread not found")

// maxTitleRunes bounds thread titles derived from the first user message.
const maxTitleRunes = 60

// Thread is a persisted conversation: its history and accumulated stats.
type Thread struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	Messages  []engine.ChatMessage `json:"messages"`
	Stats     engine.Stats         `json:"stats"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// ThreadMeta is the listing view of a thread.
type ThreadMeta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the checkpointer used by sessions.
type Store interface {
	// ListThreads returns all threads, most recently updated first.
	ListThreads(ctx context.Context) ([]ThreadMeta, error)
	LoadThread(ctx context.Context, id string) (Thread, error)
	// SaveThread replaces the thread stored under t.ID.
	SaveThread(ctx context.Context, t Thread) error
	DeleteThread(ctx context.Context, id string) error
}

// TitleFrom derives a title from the first user message.
func TitleFrom(msgs []engine.ChatMessage) string {
	for _, m := range msgs {
		if m.Role != engine.RoleUser {
			continue
		}
		title := strings.Join(strings.Fields(m.Content), " ")
		if utf8.RuneCountInString(title) <= maxTitleRunes {
			return title
		}
		r := []rune(title)
		return string(r[:maxTitleRunes])
	}
	return ""
}
