package hotkeys

import (
	"reflect"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
)

func TestModifiers(t *testing.T) {
	tests := []struct {
		seq  string
		want []string
	}{
		{"Mod1-Tab", []string{"mod1"}},
		{"Mod1-Shift-Tab", []string{"mod1", "shift"}},
		{" Control-Mod4-grave ", []string{"control", "mod4"}},
		{"Tab", nil},
		{"", nil},
	}
	for _, tt := range tests {
		if got := Modifiers(tt.seq); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Modifiers(%q) = %v, want %v", tt.seq, got, tt.want)
		}
	}
}

func TestLockCombinations(t *testing.T) {
	got := lockCombinations([]uint16{xproto.ModMaskLock, xproto.ModMask2})
	want := []uint16{0, xproto.ModMaskLock, xproto.ModMask2, xproto.ModMaskLock | xproto.ModMask2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("lockCombinations = %v, want %v", got, want)
	}

	if got := lockCombinations(nil); !reflect.DeepEqual(got, []uint16{0}) {
		t.Fatalf("lockCombinations(nil) = %v", got)
	}
}
