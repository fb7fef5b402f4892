package registry

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/1broseidon/alttab/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(wins []platform.Window) []platform.WindowID {
	out := make([]platform.WindowID, 0, len(wins))
	for _, w := range wins {
		out = append(out, w.ID)
	}
	return out
}

func TestAddAppendsAndActivateMovesToFront(t *testing.T) {
	reg, w := New()
	w.Add(platform.Window{ID: 1, Title: "a"})
	w.Add(platform.Window{ID: 2, Title: "b"})
	w.Add(platform.Window{ID: 3, Title: "c"})
	assert.Equal(t, []platform.WindowID{1, 2, 3}, ids(reg.List()))

	require.NoError(t, w.Activate(3))
	assert.Equal(t, []platform.WindowID{3, 1, 2}, ids(reg.List()))

	require.NoError(t, w.Activate(2))
	assert.Equal(t, []platform.WindowID{2, 3, 1}, ids(reg.List()))

	require.NoError(t, w.Activate(2))
	assert.Equal(t, []platform.WindowID{2, 3, 1}, ids(reg.List()))
}

func TestAddExistingDoesNotDuplicate(t *testing.T) {
	reg, w := New()
	w.Add(platform.Window{ID: 1, Title: "a"})
	w.Add(platform.Window{ID: 2, Title: "b"})
	w.Add(platform.Window{ID: 1, Title: "renamed"})

	assert.Equal(t, []platform.WindowID{1, 2}, ids(reg.List()))
	got, ok := reg.Get(1)
	require.True(t, ok)
	assert.Equal(t, "renamed", got.Title)
}

func TestUnknownReferences(t *testing.T) {
	_, w := New()
	tests := []struct {
		name string
		fn   func() error
	}{
		{"activate", func() error { return w.Activate(9) }},
		{"remove", func() error { return w.Remove(9) }},
		{"title", func() error { return w.SetTitle(9, "x") }},
		{"app id", func() error { return w.SetAppID(9, "x") }},
		{"configure", func() error { return w.Configure(9, platform.Rect{Width: 1, Height: 1}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnknownWindow))
		})
	}
}

func TestListReturnsCopy(t *testing.T) {
	reg, w := New()
	w.Add(platform.Window{ID: 1, Title: "a"})

	list := reg.List()
	list[0].Title = "mutated"

	got, _ := reg.Get(1)
	assert.Equal(t, "a", got.Title)
}

// Random event sequences: closed windows never reappear and open windows
// always carry their latest geometry.
func TestRandomEventSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		reg, w := New()
		closed := map[platform.WindowID]bool{}
		open := map[platform.WindowID]platform.Rect{}
		next := platform.WindowID(1)

		for step := 0; step < 60; step++ {
			switch rng.Intn(5) {
			case 0:
				id := next
				next++
				w.Add(platform.Window{ID: id})
				open[id] = platform.Rect{}
			case 1:
				id := platform.WindowID(rng.Intn(int(next)) + 1)
				rect := platform.Rect{X: rng.Intn(100), Y: rng.Intn(100), Width: rng.Intn(500) + 1, Height: rng.Intn(500) + 1}
				err := w.Configure(id, rect)
				if _, ok := open[id]; ok {
					require.NoError(t, err)
					open[id] = rect
				} else {
					require.ErrorIs(t, err, ErrUnknownWindow)
				}
			case 2:
				id := platform.WindowID(rng.Intn(int(next)) + 1)
				err := w.Activate(id)
				if _, ok := open[id]; ok {
					require.NoError(t, err)
					assert.Equal(t, id, reg.List()[0].ID)
				} else {
					require.ErrorIs(t, err, ErrUnknownWindow)
				}
			case 3, 4:
				id := platform.WindowID(rng.Intn(int(next)) + 1)
				err := w.Remove(id)
				if _, ok := open[id]; ok {
					require.NoError(t, err)
					delete(open, id)
					closed[id] = true
				} else {
					require.ErrorIs(t, err, ErrUnknownWindow)
				}
			}

			list := reg.List()
			require.Len(t, list, len(open))
			seen := map[platform.WindowID]bool{}
			for _, win := range list {
				assert.False(t, closed[win.ID], "closed window %s listed", win.ID)
				assert.False(t, seen[win.ID], "duplicate window %s", win.ID)
				seen[win.ID] = true
				assert.Equal(t, open[win.ID], win.Bounds)
			}
		}
	}
}
