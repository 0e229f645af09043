package vm

import "github.com/pkg/errors"

// Failures surfaced to the CPU as "instruction failed". Callers match them
// with errors.Is; the memory manager wraps them with the failing pid, id or address.
var (
	ErrInvalidRegion  = errors.New("invalid region")
	ErrInvalidAddress = errors.New("invalid address")
	ErrOutOfMemory    = errors.New("out of memory")
	ErrNoFreeFrame    = errors.New("no free frame")
	ErrDeviceMode     = errors.New("access mode not supported by device")
	ErrInvalidSwap    = errors.New("invalid swap device")
	ErrRegionInUse    = errors.New("region id already allocated")

	// ErrMalformedPTE is only returned when decoding a packed entry. Misusing a
	// decoded entry panics instead.
	ErrMalformedPTE = errors.New("malformed page table entry")
)
