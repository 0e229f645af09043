package vm

import (
	"fmt"

	"github.com/pkg/errors"
)

// address layout
const (
	AddressBits     = 20
	OffsetBits      = 10
	FirstLevelBits  = 5 /* page directory */
	SecondLevelBits = 5 /* page table */

	PageSize = 1 << OffsetBits
	MaxPages = 1 << (AddressBits - OffsetBits)
	MaxAddr  = 1 << AddressBits
)

// packed entry layout
const (
	ptePresent = 1 << 31
	pteSwapped = 1 << 30
	pteDirty   = 1 << 28

	pteFrameBits  = 13
	pteFrameMask  = 1<<pteFrameBits - 1 /* bits 0-12 */
	pteSwapTypLo  = pteFrameBits
	pteSwapTypBit = 2
	pteSwapTypMax = 1<<pteSwapTypBit - 1 /* bits 13-14 */
	pteSwapOffLo  = pteSwapTypLo + pteSwapTypBit
	pteSwapOffBit = 13
	pteSwapOffMax = 1<<pteSwapOffBit - 1 /* bits 15-27 */

	// MaxFrames bounds both RAM frames and swap frames per device.
	MaxFrames = 1 << pteFrameBits
	// MaxSwapDevices is the number of swap types an entry can name.
	MaxSwapDevices = pteSwapTypMax + 1
)

type entryState uint8

const (
	absent entryState = iota
	resident
	swapped
)

// PageEntry is the page table's view of one page: never touched, resident
// in a RAM frame, or parked on a swap device. Only one of frame and
// (swapType, swapOffset) is meaningful at a time.
type PageEntry struct {
	state      entryState
	frame      int
	swapType   int
	swapOffset int
	Dirty      bool
}

func Resident(fpn int) PageEntry {
	return PageEntry{state: resident, frame: fpn}
}

func Swapped(swapType, swapOffset int) PageEntry {
	return PageEntry{state: swapped, swapType: swapType, swapOffset: swapOffset}
}

// Present is true once the page has been touched, whether it now lives in
// RAM or on swap.
func (e PageEntry) Present() bool  { return e.state != absent }
func (e PageEntry) Resident() bool { return e.state == resident }
func (e PageEntry) Swapped() bool  { return e.state == swapped }

// Frame panics unless the page is resident.
func (e PageEntry) Frame() int {
	if e.state != resident {
		panic(fmt.Sprintf("vm: frame number read from %s page entry", e.state))
	}
	return e.frame
}

// SwapLocation panics unless the page is swapped out.
func (e PageEntry) SwapLocation() (swapType, swapOffset int) {
	if e.state != swapped {
		panic(fmt.Sprintf("vm: swap location read from %s page entry", e.state))
	}
	return e.swapType, e.swapOffset
}

func (s entryState) String() string {
	switch s {
	case resident:
		return "resident"
	case swapped:
		return "swapped"
	}
	return "absent"
}

// Pack encodes the entry into its 32-bit form.
func (e PageEntry) Pack() uint32 {
	var w uint32
	switch e.state {
	case absent:
		return 0
	case resident:
		if e.frame < 0 || e.frame > pteFrameMask {
			panic(fmt.Sprintf("vm: frame %d does not fit a page entry", e.frame))
		}
		w = ptePresent | uint32(e.frame)
	case swapped:
		if e.swapType < 0 || e.swapType > pteSwapTypMax || e.swapOffset < 0 || e.swapOffset > pteSwapOffMax {
			panic(fmt.Sprintf("vm: swap location %d:%d does not fit a page entry", e.swapType, e.swapOffset))
		}
		w = ptePresent | pteSwapped |
			uint32(e.swapType)<<pteSwapTypLo |
			uint32(e.swapOffset)<<pteSwapOffLo
	}
	if e.Dirty {
		w |= pteDirty
	}
	return w
}

// UnpackEntry decodes a packed entry, rejecting words that mix both
// interpretations.
func UnpackEntry(w uint32) (PageEntry, error) {
	frame := int(w & pteFrameMask)
	swapBits := w >> pteSwapTypLo & (1<<(pteSwapTypBit+pteSwapOffBit) - 1)
	dirty := w&pteDirty != 0

	if w&ptePresent == 0 {
		if w != 0 {
			return PageEntry{}, errors.Wrapf(ErrMalformedPTE, "%08x: fields set on an absent entry", w)
		}
		return PageEntry{}, nil
	}
	if w&pteSwapped == 0 {
		if swapBits != 0 {
			return PageEntry{}, errors.Wrapf(ErrMalformedPTE, "%08x: swap fields on a resident entry", w)
		}
		e := Resident(frame)
		e.Dirty = dirty
		return e, nil
	}
	if frame != 0 {
		return PageEntry{}, errors.Wrapf(ErrMalformedPTE, "%08x: frame number on a swapped entry", w)
	}
	e := Swapped(int(w>>pteSwapTypLo&pteSwapTypMax), int(w>>pteSwapOffLo&pteSwapOffMax))
	e.Dirty = dirty
	return e, nil
}

func PageNumber(addr int) int { return addr >> OffsetBits }
func PageOffset(addr int) int { return addr & (PageSize - 1) }

// Directory and TableIndex split a page number into the two 5-bit levels.
func Directory(pgn int) int  { return pgn >> SecondLevelBits & (1<<FirstLevelBits - 1) }
func TableIndex(pgn int) int { return pgn & (1<<SecondLevelBits - 1) }

// alignUp rounds size up to a whole number of pages.
func alignUp(size int) int {
	return (size + PageSize - 1) &^ (PageSize - 1)
}
