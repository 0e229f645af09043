package vm

import (
	"testing"

	"github.com/pkg/errors"
)

func TestPageEntryPackRoundTrip(t *testing.T) {
	dirty := Resident(17)
	dirty.Dirty = true

	tests := []struct {
		name  string
		entry PageEntry
		word  uint32
	}{
		{"absent", PageEntry{}, 0},
		{"resident", Resident(5), 0x80000005},
		{"resident dirty", dirty, 0x90000011},
		{"swapped", Swapped(2, 3), 0xC0000000 | 2<<13 | 3<<15},
		{"swapped max", Swapped(MaxSwapDevices-1, pteSwapOffMax), 0xC0000000 | 3<<13 | 0x1FFF<<15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Pack(); got != tt.word {
				t.Fatalf("Pack() = %08x, want %08x", got, tt.word)
			}
			back, err := UnpackEntry(tt.word)
			if err != nil {
				t.Fatalf("UnpackEntry failed: %v", err)
			}
			if back != tt.entry {
				t.Errorf("UnpackEntry = %+v, want %+v", back, tt.entry)
			}
		})
	}
}

func TestPageEntryFieldsDoNotOverlap(t *testing.T) {
	fields := []uint32{
		ptePresent,
		pteSwapped,
		pteDirty,
		pteFrameMask,
		pteSwapTypMax << pteSwapTypLo,
		pteSwapOffMax << pteSwapOffLo,
	}
	var seen uint32
	for i, f := range fields {
		if seen&f != 0 {
			t.Errorf("field %d overlaps an earlier field: %08x", i, f)
		}
		seen |= f
	}
}

func TestUnpackRejectsMixedEntries(t *testing.T) {
	for _, w := range []uint32{
		0xC0000001,         // swapped with a frame number
		0x80000000 | 1<<15, // resident with a swap offset
		0x00000004,         // fields on an absent entry
		pteDirty,           // dirty but never present
	} {
		if _, err := UnpackEntry(w); !errors.Is(err, ErrMalformedPTE) {
			t.Errorf("UnpackEntry(%08x): expected ErrMalformedPTE, got %v", w, err)
		}
	}
}

func TestPageEntryInterpretationsExclusive(t *testing.T) {
	e := Resident(3)
	if !e.Present() || !e.Resident() || e.Swapped() {
		t.Fatalf("unexpected flags for resident entry %+v", e)
	}
	mustPanic(t, "SwapLocation on resident", func() { e.SwapLocation() })

	e = Swapped(1, 9)
	if !e.Present() || e.Resident() || !e.Swapped() {
		t.Fatalf("unexpected flags for swapped entry %+v", e)
	}
	mustPanic(t, "Frame on swapped", func() { e.Frame() })
	mustPanic(t, "Frame on absent", func() { PageEntry{}.Frame() })
	mustPanic(t, "Pack of oversized frame", func() { Resident(MaxFrames).Pack() })
}

func TestAddressSplit(t *testing.T) {
	addr := 0b10110_01101_0000000111
	if PageNumber(addr) != 0b1011001101 {
		t.Errorf("PageNumber = %b", PageNumber(addr))
	}
	if PageOffset(addr) != 7 {
		t.Errorf("PageOffset = %d", PageOffset(addr))
	}
	pgn := PageNumber(addr)
	if Directory(pgn) != 0b10110 || TableIndex(pgn) != 0b01101 {
		t.Errorf("Directory/TableIndex = %b/%b", Directory(pgn), TableIndex(pgn))
	}

	for size, want := range map[int]int{1: PageSize, PageSize: PageSize, PageSize + 1: 2 * PageSize, 300: PageSize} {
		if got := alignUp(size); got != want {
			t.Errorf("alignUp(%d) = %d, want %d", size, got, want)
		}
	}
}

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	f()
}
