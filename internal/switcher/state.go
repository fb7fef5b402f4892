package switcher

import (
	"sort"
	"strings"

	"github.com/1broseidon/alttab/internal/capture"
	"github.com/1broseidon/alttab/internal/platform"
)

// Phase represents the current phase of the switcher
type Phase int

const (
	// PhaseIdle means no overlay is shown
	PhaseIdle Phase = iota
	// PhaseActive means a session is running and the overlay is visible
	PhaseActive
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	default:
		return "unknown"
	}
}

// Direction is the cycling direction of a show request.
type Direction int

const (
	DirNext Direction = iota
	DirPrevious
)

// String returns the string representation of the direction
func (d Direction) String() string {
	if d == DirPrevious {
		return "previous"
	}
	return "next"
}

// ParseDirection maps "next"/"previous" to a Direction. Empty means next.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(s) {
	case "", "next":
		return DirNext, true
	case "previous", "prev":
		return DirPrevious, true
	default:
		return DirNext, false
	}
}

// ShowRequest asks for the overlay, or cycles it when already shown.
type ShowRequest struct {
	Direction Direction
	// Modifiers is the set of keys whose release commits the selection.
	Modifiers []string
}

// Session is the state of one overlay lifetime.
type Session struct {
	Phase Phase
	// Snapshot is the registry order at session start. It never changes while
	// the session is active.
	Snapshot  []platform.Window
	Cursor    int
	Direction Direction
	Modifiers []string
	Handles   map[platform.WindowID]capture.Handle
}

// Reset returns the session to idle
func (s *Session) Reset() {
	s.Phase = PhaseIdle
	s.Snapshot = nil
	s.Cursor = 0
	s.Direction = DirNext
	s.Modifiers = nil
	s.Handles = nil
}

// Selected returns the window under the cursor.
func (s *Session) Selected() (platform.Window, bool) {
	if s.Phase != PhaseActive || s.Cursor < 0 || s.Cursor >= len(s.Snapshot) {
		return platform.Window{}, false
	}
	return s.Snapshot[s.Cursor], true
}

// modifierAliases maps X keysym-style names to the names clients usually send.
var modifierAliases = map[string]string{
	"mod1":    "alt",
	"mod4":    "super",
	"logo":    "super",
	"meta":    "super",
	"control": "ctrl",
}

// normalizeModifiers lower-cases, de-duplicates and sorts a modifier list so
// two requests can be compared.
func normalizeModifiers(mods []string) []string {
	seen := make(map[string]bool, len(mods))
	out := make([]string, 0, len(mods))
	for _, m := range mods {
		m = strings.ToLower(strings.TrimSpace(m))
		if alias, ok := modifierAliases[m]; ok {
			m = alias
		}
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// sharesModifier reports whether two normalized sets have a key in common.
// Alt+Tab followed by Alt+Shift+Tab shares alt and keeps cycling.
func sharesModifier(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// step moves idx by one in dir, wrapping around n.
func step(idx int, dir Direction, n int) int {
	if n <= 0 {
		return 0
	}
	if dir == DirPrevious {
		return (idx - 1 + n) % n
	}
	return (idx + 1) % n
}

// visibleRange returns the half-open range of at most limit indices centred
// on cursor and clamped to [0, n).
func visibleRange(cursor, n, limit int) (int, int) {
	if limit <= 0 || n <= limit {
		return 0, n
	}
	start := cursor - limit/2
	if start < 0 {
		start = 0
	}
	if start+limit > n {
		start = n - limit
	}
	return start, start + limit
}
