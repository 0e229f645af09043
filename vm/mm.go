package vm

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"
)

// Stats counts paging activity of one memory manager.
type Stats struct {
	Faults    int
	Evictions int
	SwapIns   int
	Reads     int
	Writes    int
}

// MM is the memory manager of one process. It exclusively owns the area,
// page table and symbol table; RAM and swap stores are shared.
type MM struct {
	pid     int
	log     *slog.Logger
	area    *Area
	pgd     [MaxPages]PageEntry
	symbols [SymbolTableSize]Region

	// pages made resident by a fault, oldest first
	tracked []int

	ram    *Store
	swaps  []*Store
	active int

	stats Stats
}

// NewMM builds an empty address space for pid. swaps[0] starts as the active
// swap device.
func NewMM(pid int, ram *Store, swaps []*Store, logger *slog.Logger) *MM {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &MM{
		pid:     pid,
		log:     logger.With("pid", pid),
		area:    newArea(0),
		symbols: emptySymbols(),
		ram:     ram,
		swaps:   swaps,
	}
}

func (mm *MM) PID() int { return mm.pid }

// Alloc reserves size bytes under symbol rgid and returns the start address.
// The first free region that fits is used; otherwise the area grows at sbrk.
func (mm *MM) Alloc(rgid, size int) (int, error) {
	if err := checkSymbol(rgid); err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, errors.Wrapf(ErrInvalidRegion, "pid %d: allocation of %d bytes", mm.pid, size)
	}
	if mm.symbols[rgid].live() {
		return 0, errors.Wrapf(ErrRegionInUse, "pid %d: region %d", mm.pid, rgid)
	}

	rg, ok := mm.area.firstFit(size)
	if !ok {
		var err error
		if rg, err = mm.growArea(size); err != nil {
			return 0, err
		}
	}
	mm.symbols[rgid] = rg
	mm.log.Debug("alloc", "region", rgid, "start", rg.Start, "end", rg.End)
	return rg.Start, nil
}

// growArea extends the area by size rounded up to whole pages, maps the new
// pages and hands out [sbrk, sbrk+size).
func (mm *MM) growArea(size int) (Region, error) {
	a := mm.area
	inc := alignUp(size)
	if a.End+inc > MaxAddr {
		return Region{}, errors.Wrapf(ErrOutOfMemory, "pid %d: growing area past %d bytes", mm.pid, MaxAddr)
	}
	if err := mm.mapRange(a.End, inc/PageSize); err != nil {
		return Region{}, err
	}
	a.End += inc

	rg := Region{Start: a.Sbrk, End: a.Sbrk + size}
	a.Sbrk += size
	return rg, nil
}

// Free returns the region held by rgid to the head of the free list. Its
// bytes are left as they were.
func (mm *MM) Free(rgid int) error {
	if err := checkSymbol(rgid); err != nil {
		return err
	}
	rg := mm.symbols[rgid]
	if !rg.live() {
		return errors.Wrapf(ErrInvalidRegion, "pid %d: region %d is not allocated", mm.pid, rgid)
	}
	mm.area.release(rg)
	mm.symbols[rgid] = Region{Start: sentinel, End: sentinel}
	mm.log.Debug("free", "region", rgid, "start", rg.Start, "end", rg.End)
	return nil
}

func (mm *MM) region(rgid, offset int) (int, error) {
	if err := checkSymbol(rgid); err != nil {
		return 0, err
	}
	rg := mm.symbols[rgid]
	if !rg.live() {
		return 0, errors.Wrapf(ErrInvalidRegion, "pid %d: region %d is not allocated", mm.pid, rgid)
	}
	if offset < 0 || offset >= rg.Size() {
		return 0, errors.Wrapf(ErrInvalidRegion, "pid %d: offset %d outside region %d of %d bytes", mm.pid, offset, rgid, rg.Size())
	}
	return rg.Start + offset, nil
}

// ReadRegion reads the byte at offset inside region rgid.
func (mm *MM) ReadRegion(rgid, offset int) (byte, error) {
	addr, err := mm.region(rgid, offset)
	if err != nil {
		return 0, err
	}
	return mm.ReadByte(addr)
}

func (mm *MM) WriteRegion(rgid, offset int, value byte) error {
	addr, err := mm.region(rgid, offset)
	if err != nil {
		return err
	}
	return mm.WriteByte(addr, value)
}

// SetActiveSwap picks the swap device that receives evicted pages.
func (mm *MM) SetActiveSwap(i int) error {
	if i < 0 || i >= len(mm.swaps) {
		return errors.Wrapf(ErrInvalidSwap, "pid %d: swap %d of %d", mm.pid, i, len(mm.swaps))
	}
	mm.active = i
	return nil
}

// Release hands every frame the process holds back to RAM and swap and
// resets the address space.
func (mm *MM) Release() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for pgn := range mm.pgd {
		e := mm.pgd[pgn]
		switch {
		case e.Resident():
			keep(mm.ram.PutFreeFrame(e.Frame()))
		case e.Swapped():
			typ, off := e.SwapLocation()
			keep(mm.swaps[typ].PutFreeFrame(off))
		}
		mm.pgd[pgn] = PageEntry{}
	}
	mm.tracked = nil
	mm.symbols = emptySymbols()
	mm.area = newArea(0)
	return firstErr
}

func (mm *MM) Area() Area {
	a := *mm.area
	a.free = nil
	return a
}

// FreeRegions returns the free list in list order.
func (mm *MM) FreeRegions() []Region {
	return append([]Region(nil), mm.area.free...)
}

// Symbol returns the region held by rgid and whether it is allocated.
func (mm *MM) Symbol(rgid int) (Region, bool) {
	if checkSymbol(rgid) != nil {
		return Region{}, false
	}
	rg := mm.symbols[rgid]
	return rg, rg.live()
}

func (mm *MM) Entry(pgn int) PageEntry {
	if pgn < 0 || pgn >= MaxPages {
		return PageEntry{}
	}
	return mm.pgd[pgn]
}

// Tracked returns the replacement list, next victim first.
func (mm *MM) Tracked() []int {
	return append([]int(nil), mm.tracked...)
}

func (mm *MM) Stats() Stats { return mm.stats }

// DumpPageTable prints the packed entries of the pages covering
// [start, end). An end of -1 means the end of the area.
func (mm *MM) DumpPageTable(w io.Writer, start, end int) {
	if end == -1 {
		end = mm.area.End
	}
	fmt.Fprintf(w, "page table pid %d: %d - %d\n", mm.pid, start, end)
	for pgn := PageNumber(start); pgn < PageNumber(end) && pgn < MaxPages; pgn++ {
		e := mm.pgd[pgn]
		fmt.Fprintf(w, "%08d: %08x  [%02d|%02d] %s\n", pgn*4, e.Pack(), Directory(pgn), TableIndex(pgn), e.state)
	}
}

// DumpRegions prints the area bounds, the free list and live symbols.
func (mm *MM) DumpRegions(w io.Writer) {
	a := mm.area
	fmt.Fprintf(w, "area %d pid %d: [%d, %d) sbrk %d\n", a.ID, mm.pid, a.Start, a.End, a.Sbrk)
	for _, rg := range a.free {
		fmt.Fprintf(w, "  free [%d->%d]\n", rg.Start, rg.End)
	}
	for id, rg := range mm.symbols {
		if rg.live() {
			fmt.Fprintf(w, "  rg%-2d [%d->%d]\n", id, rg.Start, rg.End)
		}
	}
}
