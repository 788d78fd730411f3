// Package transcript accumulates streamed text fragments per speaker turn
// and commits finalized entries at turn boundaries.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a transcript item.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Item is one committed conversational turn. Immutable once appended.
type Item struct {
	ID        string
	Role      Role
	Text      string
	Timestamp time.Time
}

// Assembler buffers in-progress fragments for both speakers and appends
// committed items in turn-completion order. An item is only ever created at
// a turn-complete boundary, never mid-stream.
type Assembler struct {
	mu           sync.Mutex
	pendingUser  strings.Builder
	pendingModel strings.Builder
	items        []Item

	// onPreview observes the model's in-progress utterance text; the
	// preview is always a prefix of the eventually committed text unless
	// an interruption discards it first.
	onPreview func(string)
	// onCommit observes each appended item.
	onCommit func(Item)
}

// New builds an assembler. Both observers may be nil.
func New(onPreview func(string), onCommit func(Item)) *Assembler {
	return &Assembler{onPreview: onPreview, onCommit: onCommit}
}

// AppendUser accumulates a fragment of the service's transcription of the
// user's speech. Not shown live.
func (a *Assembler) AppendUser(fragment string) {
	if fragment == "" {
		return
	}
	a.mu.Lock()
	a.pendingUser.WriteString(fragment)
	a.mu.Unlock()
}

// AppendModel accumulates a fragment of the model's current utterance and
// publishes the running preview.
func (a *Assembler) AppendModel(fragment string) {
	if fragment == "" {
		return
	}
	a.mu.Lock()
	a.pendingModel.WriteString(fragment)
	preview := a.pendingModel.String()
	a.mu.Unlock()

	if a.onPreview != nil {
		a.onPreview(preview)
	}
}

// CommitTurn finalizes both pending buffers: user first, then model, each
// trimmed of surrounding whitespace and skipped when empty. Clears the
// buffers and the live preview.
func (a *Assembler) CommitTurn(now time.Time) []Item {
	a.mu.Lock()
	userText := strings.TrimSpace(a.pendingUser.String())
	modelText := strings.TrimSpace(a.pendingModel.String())
	a.pendingUser.Reset()
	a.pendingModel.Reset()

	var committed []Item
	if userText != "" {
		committed = append(committed, Item{ID: uuid.NewString(), Role: RoleUser, Text: userText, Timestamp: now})
	}
	if modelText != "" {
		committed = append(committed, Item{ID: uuid.NewString(), Role: RoleModel, Text: modelText, Timestamp: now})
	}
	a.items = append(a.items, committed...)
	a.mu.Unlock()

	if a.onPreview != nil {
		a.onPreview("")
	}
	if a.onCommit != nil {
		for _, item := range committed {
			a.onCommit(item)
		}
	}
	return committed
}

// DiscardModel drops the model's in-flight fragments and clears the
// preview; used on interruption and regeneration.
func (a *Assembler) DiscardModel() {
	a.mu.Lock()
	a.pendingModel.Reset()
	a.mu.Unlock()

	if a.onPreview != nil {
		a.onPreview("")
	}
}

// Preview returns the model's in-progress utterance text.
func (a *Assembler) Preview() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pendingModel.String()
}

// Items returns a copy of the committed transcript in commit order.
func (a *Assembler) Items() []Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Item(nil), a.items...)
}
