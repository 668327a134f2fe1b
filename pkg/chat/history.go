package chat

import (
	"sync"

	"github.com/harunnryd/hearth/pkg/llm"
)

// History is the append-only message log of one session. The optional system
// prompt is always the first entry.
type History struct {
	mu   sync.RWMutex
	msgs []llm.Message
}

func NewHistory(systemPrompt string) *History {
	h := &History{}
	if systemPrompt != "" {
		h.msgs = append(h.msgs, llm.SystemMessage(systemPrompt))
	}
	return h
}

func (h *History) Append(msgs ...llm.Message) {
	h.mu.Lock()
	h.msgs = append(h.msgs, msgs...)
	h.mu.Unlock()
}

// Messages returns a copy of the full log.
func (h *History) Messages() []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]llm.Message(nil), h.msgs...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}

// Window returns the system prompt followed by the most recent other
// messages, at most max of them when that does not split a tool round. The
// window is widened so it never opens on a tool result whose call was cut off
// and always holds the latest user message with everything after it.
// max <= 0 returns everything.
func (h *History) Window(max int) []llm.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if max <= 0 {
		return append([]llm.Message(nil), h.msgs...)
	}
	var system []llm.Message
	rest := h.msgs
	if len(rest) > 0 && rest[0].Role == llm.RoleSystem {
		system = rest[:1]
		rest = rest[1:]
	}
	start := 0
	if len(rest) > max {
		start = len(rest) - max
	}
	for start > 0 && rest[start].Role == llm.RoleTool {
		start--
	}
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i].Role == llm.RoleUser {
			start = min(start, i)
			break
		}
	}
	out := make([]llm.Message, 0, len(system)+len(rest)-start)
	out = append(out, system...)
	return append(out, rest[start:]...)
}
