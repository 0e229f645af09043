package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestStoreRandomBounds(t *testing.T) {
	s := NewStore("ram", PageSize, true)

	for _, addr := range []int{PageSize, PageSize + 7, -1} {
		if err := s.Write(addr, 0xAB); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Write(%d): expected ErrInvalidAddress, got %v", addr, err)
		}
		if _, err := s.Read(addr); !errors.Is(err, ErrInvalidAddress) {
			t.Errorf("Read(%d): expected ErrInvalidAddress, got %v", addr, err)
		}
	}

	for addr := 0; addr < PageSize; addr++ {
		b, err := s.Read(addr)
		if err != nil {
			t.Fatalf("Read(%d) failed: %v", addr, err)
		}
		if b != 0 {
			t.Fatalf("storage mutated at %d: %#x", addr, b)
		}
	}

	if err := s.Write(PageSize-1, 'z'); err != nil {
		t.Fatalf("Write at last cell failed: %v", err)
	}
	if b, _ := s.Read(PageSize - 1); b != 'z' {
		t.Errorf("expected 'z', got %q", b)
	}
}

func TestStoreSequentialCursor(t *testing.T) {
	s := NewStore("swp0", 2*PageSize, false)

	if err := s.Write(10, 'h'); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if s.Steps() != 10 {
		t.Errorf("expected 10 cursor steps, got %d", s.Steps())
	}
	if b, err := s.Read(10); err != nil || b != 'h' {
		t.Errorf("Read(10) = %q, %v", b, err)
	}

	// a target past the end stops after one full wrap and the access fails
	before := s.Steps()
	if _, err := s.Read(5 * PageSize); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
	if got := s.Steps() - before; got != 2*PageSize {
		t.Errorf("expected %d steps, got %d", 2*PageSize, got)
	}
}

func TestStoreModeMismatch(t *testing.T) {
	ram := NewStore("ram", PageSize, true)
	swp := NewStore("swp0", PageSize, false)

	if _, err := ram.SeqRead(0); !errors.Is(err, ErrDeviceMode) {
		t.Errorf("SeqRead on random store: got %v", err)
	}
	if err := ram.SeqWrite(0, 1); !errors.Is(err, ErrDeviceMode) {
		t.Errorf("SeqWrite on random store: got %v", err)
	}
	if _, err := swp.RandRead(0); !errors.Is(err, ErrDeviceMode) {
		t.Errorf("RandRead on sequential store: got %v", err)
	}
	if err := swp.RandWrite(0, 1); !errors.Is(err, ErrDeviceMode) {
		t.Errorf("RandWrite on sequential store: got %v", err)
	}

	if err := swp.SeqWrite(3, 7); err != nil {
		t.Fatalf("SeqWrite failed: %v", err)
	}
	if b, err := swp.SeqRead(3); err != nil || b != 7 {
		t.Errorf("SeqRead(3) = %d, %v", b, err)
	}
	if err := ram.RandWrite(3, 9); err != nil {
		t.Fatalf("RandWrite failed: %v", err)
	}
	if b, err := ram.RandRead(3); err != nil || b != 9 {
		t.Errorf("RandRead(3) = %d, %v", b, err)
	}
}

func TestFrameAllocatorLIFO(t *testing.T) {
	s := NewStore("ram", 3*PageSize+100, true)
	if s.FreeFrames() != 3 {
		t.Fatalf("expected 3 formatted frames, got %d", s.FreeFrames())
	}

	for want := 0; want < 3; want++ {
		got, err := s.GetFreeFrame()
		if err != nil {
			t.Fatalf("GetFreeFrame failed: %v", err)
		}
		if got != want {
			t.Errorf("expected frame %d, got %d", want, got)
		}
	}
	if _, err := s.GetFreeFrame(); !errors.Is(err, ErrNoFreeFrame) {
		t.Errorf("expected ErrNoFreeFrame, got %v", err)
	}

	s.PutFreeFrame(1)
	s.PutFreeFrame(2)
	if got, _ := s.GetFreeFrame(); got != 2 {
		t.Errorf("expected most recently freed frame 2, got %d", got)
	}
	if got, _ := s.GetFreeFrame(); got != 1 {
		t.Errorf("expected frame 1, got %d", got)
	}

	if err := s.PutFreeFrame(3); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress for foreign frame, got %v", err)
	}
}

func TestFrameOwner(t *testing.T) {
	s := NewStore("ram", 2*PageSize, true)

	fpn, err := s.claimFrame(7)
	if err != nil {
		t.Fatalf("claimFrame failed: %v", err)
	}
	if pid, ok := s.Owner(fpn); !ok || pid != 7 {
		t.Errorf("expected owner 7, got %d %v", pid, ok)
	}
	s.PutFreeFrame(fpn)
	if _, ok := s.Owner(fpn); ok {
		t.Error("released frame still has an owner")
	}
}

func TestCopyFrame(t *testing.T) {
	ram := NewStore("ram", 2*PageSize, true)
	swp := NewStore("swp0", 2*PageSize, false)

	for i := 0; i < PageSize; i++ {
		ram.Write(PageSize+i, byte(i))
	}
	if err := copyFrame(ram, 1, swp, 0); err != nil {
		t.Fatalf("copyFrame failed: %v", err)
	}
	for i := 0; i < PageSize; i++ {
		if b, _ := swp.Read(i); b != byte(i) {
			t.Fatalf("cell %d: expected %d, got %d", i, byte(i), b)
		}
	}
}

func TestStoreDump(t *testing.T) {
	s := NewStore("ram", 2*PageSize, true)
	s.Write(PageSize+1, 0xEE)

	var buf bytes.Buffer
	s.Dump(&buf)
	out := buf.String()

	if !strings.Contains(out, "ram: 2.0 KiB random, 2/2 frames free") {
		t.Errorf("unexpected header:\n%s", out)
	}
	if !strings.Contains(out, "frame 0001") || strings.Contains(out, "frame 0000") {
		t.Errorf("expected only frame 1 in dump:\n%s", out)
	}
}
