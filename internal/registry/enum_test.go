package registry

import "testing"

func TestEnumWindowCentersOnListIndex(t *testing.T) {
	adjusted, min, max := enumWindow(10, 4, 100)
	if min != 8 || max != 12 {
		t.Fatalf("window = [%d,%d], want [8,12]", min, max)
	}
	if adjusted != 2 {
		t.Fatalf("adjustedIndex = %d, want 2", adjusted)
	}
}

func TestEnumWindowClampsLowAndReExpandsHigh(t *testing.T) {
	// listIndex near the start: the lower bound clamps to 0 and the
	// window re-expands upward to keep frameSize wide.
	adjusted, min, max := enumWindow(1, 4, 100)
	if min != 0 {
		t.Fatalf("frameMin = %d, want 0", min)
	}
	if max != 4 {
		t.Fatalf("frameMax = %d, want 4 (re-expanded)", max)
	}
	if adjusted != 1 {
		t.Fatalf("adjustedIndex = %d, want 1", adjusted)
	}
}

func TestEnumWindowClampsHighAndReExpandsLow(t *testing.T) {
	// listIndex near the end: the upper bound clamps to listCount-1 and
	// the window re-expands downward.
	adjusted, min, max := enumWindow(98, 4, 100)
	if max != 99 {
		t.Fatalf("frameMax = %d, want 99", max)
	}
	if min != 95 {
		t.Fatalf("frameMin = %d, want 95 (re-expanded)", min)
	}
	if adjusted != 98-95 {
		t.Fatalf("adjustedIndex = %d, want %d", adjusted, 98-95)
	}
}

func TestEnumWindowShortListNeverOverruns(t *testing.T) {
	adjusted, min, max := enumWindow(1, 10, 3)
	if min != 0 || max != 2 {
		t.Fatalf("window = [%d,%d], want [0,2] for a 3-item list", min, max)
	}
	if adjusted != 1 {
		t.Fatalf("adjustedIndex = %d, want 1", adjusted)
	}
}

func TestEnumWindowEmptyList(t *testing.T) {
	adjusted, min, max := enumWindow(0, 4, 0)
	if adjusted != 0 || min != 0 || max != 0 {
		t.Fatalf("enumWindow on empty list = (%d,%d,%d), want (0,0,0)", adjusted, min, max)
	}
}
