package vm

import (
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

const noOwner = -1

// Store is a physical device: RAM or one swap device. Storage and the
// free-frame list are shared by every process of a run, so each access
// holds mu.
type Store struct {
	mu      sync.Mutex
	name    string
	storage []byte
	random  bool

	// sequential devices only
	cursor int
	steps  uint64

	// head of the free list is the last element
	freeFrames []int
	owners     map[int]int
}

// NewStore allocates capacity bytes and formats capacity/PageSize frames.
func NewStore(name string, capacity int, random bool) *Store {
	if capacity < 0 {
		capacity = 0
	}
	s := &Store{
		name:    name,
		storage: make([]byte, capacity),
		random:  random,
		owners:  make(map[int]int),
	}
	s.format()
	return s
}

func (s *Store) format() {
	n := len(s.storage) / PageSize
	s.freeFrames = make([]int, 0, n)
	for fpn := n - 1; fpn >= 0; fpn-- {
		s.freeFrames = append(s.freeFrames, fpn)
	}
}

func (s *Store) Name() string  { return s.name }
func (s *Store) Capacity() int { return len(s.storage) }
func (s *Store) Random() bool  { return s.random }
func (s *Store) Frames() int   { return len(s.storage) / PageSize }

// Steps is the number of cursor moves made by sequential accesses so far.
func (s *Store) Steps() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// Read accesses addr using the device's own access mode.
func (s *Store) Read(addr int) (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.random {
		s.moveCursor(addr)
	}
	return s.load(addr)
}

func (s *Store) Write(addr int, value byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.random {
		s.moveCursor(addr)
	}
	return s.store(addr, value)
}

func (s *Store) SeqRead(addr int) (byte, error) {
	if s.random {
		return 0, errors.Wrapf(ErrDeviceMode, "sequential read on %s", s.name)
	}
	return s.Read(addr)
}

func (s *Store) SeqWrite(addr int, value byte) error {
	if s.random {
		return errors.Wrapf(ErrDeviceMode, "sequential write on %s", s.name)
	}
	return s.Write(addr, value)
}

func (s *Store) RandRead(addr int) (byte, error) {
	if !s.random {
		return 0, errors.Wrapf(ErrDeviceMode, "random read on %s", s.name)
	}
	return s.Read(addr)
}

func (s *Store) RandWrite(addr int, value byte) error {
	if !s.random {
		return errors.Wrapf(ErrDeviceMode, "random write on %s", s.name)
	}
	return s.Write(addr, value)
}

// moveCursor walks from 0 toward addr one cell at a time. It never fails: a
// target past the end stops after one full wrap.
func (s *Store) moveCursor(addr int) {
	size := len(s.storage)
	if size == 0 {
		return
	}
	s.cursor = 0
	for n := 0; n < addr && n < size; n++ {
		s.cursor = (s.cursor + 1) % size
		s.steps++
	}
}

func (s *Store) load(addr int) (byte, error) {
	if addr < 0 || addr >= len(s.storage) {
		return 0, errors.Wrapf(ErrInvalidAddress, "%s: read at %d (capacity %d)", s.name, addr, len(s.storage))
	}
	return s.storage[addr], nil
}

func (s *Store) store(addr int, value byte) error {
	if addr < 0 || addr >= len(s.storage) {
		return errors.Wrapf(ErrInvalidAddress, "%s: write at %d (capacity %d)", s.name, addr, len(s.storage))
	}
	s.storage[addr] = value
	return nil
}

// GetFreeFrame pops the head of the free-frame list.
func (s *Store) GetFreeFrame() (int, error) {
	return s.claimFrame(noOwner)
}

func (s *Store) claimFrame(pid int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.freeFrames)
	if n == 0 {
		return 0, errors.Wrapf(ErrNoFreeFrame, "%s", s.name)
	}
	fpn := s.freeFrames[n-1]
	s.freeFrames = s.freeFrames[:n-1]
	if pid != noOwner {
		s.owners[fpn] = pid
	}
	return fpn, nil
}

// PutFreeFrame pushes fpn back on the head of the free list, so the most
// recently released frame is handed out next.
func (s *Store) PutFreeFrame(fpn int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fpn < 0 || fpn >= len(s.storage)/PageSize {
		return errors.Wrapf(ErrInvalidAddress, "%s: frame %d out of range", s.name, fpn)
	}
	delete(s.owners, fpn)
	s.freeFrames = append(s.freeFrames, fpn)
	return nil
}

func (s *Store) FreeFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.freeFrames)
}

// Owner reports the pid that last claimed fpn.
func (s *Store) Owner(fpn int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pid, ok := s.owners[fpn]
	return pid, ok
}

// copyFrame moves one page worth of bytes from src frame to dst frame through
// the devices' own access paths.
func copyFrame(src *Store, srcFpn int, dst *Store, dstFpn int) error {
	for cell := 0; cell < PageSize; cell++ {
		b, err := src.Read(srcFpn*PageSize + cell)
		if err != nil {
			return err
		}
		if err := dst.Write(dstFpn*PageSize+cell, b); err != nil {
			return err
		}
	}
	return nil
}

// Dump prints the device header and every frame holding non-zero bytes.
func (s *Store) Dump(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := "sequential"
	if s.random {
		mode = "random"
	}
	fmt.Fprintf(w, "%s: %s %s, %d/%d frames free, cursor %d\n",
		s.name, humanize.IBytes(uint64(len(s.storage))), mode,
		len(s.freeFrames), len(s.storage)/PageSize, s.cursor)

	for fpn := 0; fpn < len(s.storage)/PageSize; fpn++ {
		frame := s.storage[fpn*PageSize : (fpn+1)*PageSize]
		if isZero(frame) {
			continue
		}
		owner := "-"
		if pid, ok := s.owners[fpn]; ok {
			owner = fmt.Sprint(pid)
		}
		fmt.Fprintf(w, "  frame %04d pid %s xxh %016x % x\n", fpn, owner, xxhash.Sum64(frame), frame[:16])
	}
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
