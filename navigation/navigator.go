package navigation

import (
	"strings"
	"sync"
)

// ViewLogin is the login view every forced sign-out lands on.
const ViewLogin = "/login"

// Navigator moves the user between views.
type Navigator interface {
	CurrentView() string
	Navigate(view string)
}

// IsLoginView reports whether view is (or is nested under) the login view.
func IsLoginView(view string) bool {
	return strings.Contains(view, ViewLogin)
}

// History is a goroutine-safe Navigator that records every navigation.
type History struct {
	mu      sync.RWMutex
	views   []string
	onEnter func(view string)
}

func NewHistory(initial string, onEnter func(view string)) *History {
	h := &History{onEnter: onEnter}
	if initial != "" {
		h.views = append(h.views, initial)
	}
	return h
}

func (h *History) CurrentView() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.views) == 0 {
		return ""
	}
	return h.views[len(h.views)-1]
}

func (h *History) Navigate(view string) {
	h.mu.Lock()
	h.views = append(h.views, view)
	onEnter := h.onEnter
	h.mu.Unlock()

	if onEnter != nil {
		onEnter(view)
	}
}

// Visits counts how many times view was navigated to.
func (h *History) Visits(view string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, v := range h.views {
		if v == view {
			n++
		}
	}
	return n
}
