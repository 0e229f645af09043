package vm

import "github.com/pkg/errors"

const (
	SymbolTableSize = 30
	sentinel        = -1
)

// Region is the span [Start, End) of an area.
type Region struct {
	Start, End int
}

func (r Region) Size() int { return r.End - r.Start }

// Empty regions must never be matched by an allocation.
func (r Region) Empty() bool { return r.Start >= r.End }

func (r Region) live() bool { return r.Start != sentinel && r.End != sentinel }

func (r Region) overlaps(o Region) bool {
	return r.Start < o.End && o.Start < r.End
}

// Area is the single virtual memory area of a process. Start <= Sbrk <= End.
type Area struct {
	ID    int
	Start int
	End   int
	Sbrk  int

	free []Region
}

func newArea(id int) *Area {
	return &Area{ID: id}
}

// firstFit carves size bytes from the first free region large enough to hold
// them. A region used up completely is dropped from the list.
func (a *Area) firstFit(size int) (Region, bool) {
	for i, rg := range a.free {
		if rg.Empty() || rg.Start+size > rg.End {
			continue
		}
		got := Region{Start: rg.Start, End: rg.Start + size}
		if got.End < rg.End {
			a.free[i].Start = got.End
		} else {
			a.free = append(a.free[:i], a.free[i+1:]...)
		}
		return got, true
	}
	return Region{}, false
}

// release puts rg back at the head of the free list. Neighbours are not merged.
func (a *Area) release(rg Region) {
	if rg.Empty() {
		return
	}
	a.free = append([]Region{rg}, a.free...)
}

func checkSymbol(rgid int) error {
	if rgid < 0 || rgid >= SymbolTableSize {
		return errors.Wrapf(ErrInvalidRegion, "region id %d outside [0, %d)", rgid, SymbolTableSize)
	}
	return nil
}

func emptySymbols() [SymbolTableSize]Region {
	var t [SymbolTableSize]Region
	for i := range t {
		t[i] = Region{Start: sentinel, End: sentinel}
	}
	return t
}
