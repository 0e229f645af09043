package vm

import (
	"github.com/pkg/errors"
)

// Translate maps a virtual address of the area to a RAM address, faulting
// the page in when it is not resident.
func (mm *MM) Translate(addr int) (int, error) {
	if addr < mm.area.Start || addr >= mm.area.End {
		return 0, errors.Wrapf(ErrInvalidAddress, "pid %d: address %d outside area [%d, %d)",
			mm.pid, addr, mm.area.Start, mm.area.End)
	}
	fpn, err := mm.getPage(PageNumber(addr))
	if err != nil {
		return 0, err
	}
	return fpn<<OffsetBits | PageOffset(addr), nil
}

// ReadByte reads one byte of virtual memory.
func (mm *MM) ReadByte(addr int) (byte, error) {
	phys, err := mm.Translate(addr)
	if err != nil {
		return 0, err
	}
	mm.stats.Reads++
	return mm.ram.Read(phys)
}

// WriteByte writes one byte of virtual memory and marks its page dirty.
func (mm *MM) WriteByte(addr int, value byte) error {
	phys, err := mm.Translate(addr)
	if err != nil {
		return err
	}
	if err := mm.ram.Write(phys, value); err != nil {
		return err
	}
	mm.pgd[PageNumber(addr)].Dirty = true
	mm.stats.Writes++
	return nil
}

// mapRange makes n pages starting at the page holding addr resident.
func (mm *MM) mapRange(addr, n int) error {
	for i := 0; i < n; i++ {
		if _, err := mm.getPage(PageNumber(addr) + i); err != nil {
			return err
		}
	}
	return nil
}

// getPage returns the RAM frame holding pgn. A miss takes a free RAM frame
// when there is one and otherwise evicts the oldest tracked page to the
// active swap device.
func (mm *MM) getPage(pgn int) (int, error) {
	if pgn < 0 || pgn >= MaxPages {
		return 0, errors.Wrapf(ErrInvalidAddress, "pid %d: page %d", mm.pid, pgn)
	}
	if e := mm.pgd[pgn]; e.Resident() {
		return e.Frame(), nil
	}
	mm.stats.Faults++

	fpn, err := mm.ram.claimFrame(mm.pid)
	switch {
	case err == nil:
		if err := mm.swapIn(pgn, fpn); err != nil {
			mm.putBack(mm.ram, fpn)
			return 0, err
		}
	case errors.Is(err, ErrNoFreeFrame):
		if fpn, err = mm.evictFor(pgn); err != nil {
			return 0, err
		}
	default:
		return 0, err
	}

	dirty := mm.pgd[pgn].Dirty
	mm.pgd[pgn] = Resident(fpn)
	mm.pgd[pgn].Dirty = dirty
	mm.tracked = append(mm.tracked, pgn)
	mm.log.Debug("page resident", "page", pgn, "frame", fpn)
	return fpn, nil
}

// evictFor frees a RAM frame for pgn by moving the oldest tracked page out to
// the active swap device, then loads pgn's swap image into it. The caller
// marks pgn resident.
func (mm *MM) evictFor(pgn int) (int, error) {
	if len(mm.tracked) == 0 {
		return 0, errors.Wrapf(ErrOutOfMemory, "pid %d: RAM full and no page to evict for page %d", mm.pid, pgn)
	}
	victim := mm.tracked[0]
	fpn := mm.pgd[victim].Frame()

	swp := mm.swaps[mm.active]
	swpfpn, err := swp.claimFrame(mm.pid)
	if err != nil {
		return 0, errors.Wrapf(ErrOutOfMemory, "pid %d: %s full evicting page %d", mm.pid, swp.Name(), victim)
	}
	if err := copyFrame(mm.ram, fpn, swp, swpfpn); err != nil {
		mm.putBack(swp, swpfpn)
		return 0, err
	}

	mm.tracked = mm.tracked[1:]
	loadErr := mm.swapIn(pgn, fpn)

	// victim content is safe on swap from here on
	dirty := mm.pgd[victim].Dirty
	mm.pgd[victim] = Swapped(mm.active, swpfpn)
	mm.pgd[victim].Dirty = dirty
	mm.stats.Evictions++
	mm.log.Debug("page evicted", "victim", victim, "frame", fpn, "swap", swp.Name(), "offset", swpfpn)

	if loadErr != nil {
		mm.putBack(mm.ram, fpn)
		return 0, loadErr
	}
	return fpn, nil
}

// swapIn copies pgn's swap image, if it has one, into RAM frame fpn and
// returns the swap frame to its device. Fresh pages keep whatever the frame
// held before.
func (mm *MM) swapIn(pgn, fpn int) error {
	e := mm.pgd[pgn]
	if !e.Swapped() {
		return nil
	}
	typ, off := e.SwapLocation()
	src := mm.swaps[typ]
	if err := copyFrame(src, off, mm.ram, fpn); err != nil {
		return err
	}
	mm.stats.SwapIns++
	return src.PutFreeFrame(off)
}

// putBack returns a frame claimed by a fault that did not complete. The
// fault's own error is what the caller sees, so a failure here is logged.
func (mm *MM) putBack(s *Store, fpn int) {
	if err := s.PutFreeFrame(fpn); err != nil {
		mm.log.Error("returning frame", "store", s.Name(), "frame", fpn, "error", err)
	}
}
