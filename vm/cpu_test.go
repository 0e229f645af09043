package vm

import (
	"io"
	"log/slog"
	"testing"

	"github.com/pkg/errors"
)

func newTestProcess(t *testing.T, code []Instruction) *Process {
	t.Helper()
	mm, _, _ := newTestMM(t, 4, 4)
	return &Process{PID: 1, Code: code, MM: mm}
}

func TestCpuExecutesProgram(t *testing.T) {
	p := newTestProcess(t, []Instruction{
		{OP_ALLOC, [3]uint32{300, 0}},
		{OP_WRITE, [3]uint32{100, 0, 20}},
		{OP_READ, [3]uint32{0, 20, 1}},
		{OP_FREE, [3]uint32{0}},
		{OP_READ, [3]uint32{0, 20, 2}},
	})
	cpu := newCpu(0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < 4; i++ {
		if err := cpu.step(p); err != nil {
			t.Fatalf("instruction %d failed: %v", i, err)
		}
	}
	if p.Regs[0] != 0 {
		t.Errorf("expected region 0 at address 0, got %d", p.Regs[0])
	}
	if p.Regs[1] != 100 {
		t.Errorf("expected 100 read back into r1, got %d", p.Regs[1])
	}

	// reading a freed region fails but the program moves on
	if err := cpu.step(p); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("expected ErrInvalidRegion, got %v", err)
	}
	if p.PC != 5 || p.Failed != 1 || !p.Done() {
		t.Errorf("expected pc 5 with 1 failure, got pc %d failed %d", p.PC, p.Failed)
	}
	if p.Regs[2] != 0 {
		t.Errorf("failed read wrote r2 = %d", p.Regs[2])
	}
	if err := cpu.step(p); err == nil {
		t.Error("expected an error stepping a finished process")
	}
}

func TestCpuRejectsBadRegister(t *testing.T) {
	p := newTestProcess(t, []Instruction{
		{OP_ALLOC, [3]uint32{10, NumRegs}},
		{OP_CALC, [3]uint32{}},
	})
	cpu := newCpu(0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := cpu.step(p); !errors.Is(err, ErrInvalidRegion) {
		t.Errorf("expected ErrInvalidRegion, got %v", err)
	}
	if err := cpu.step(p); err != nil {
		t.Errorf("calc failed: %v", err)
	}
	if p.PC != 2 || p.Failed != 1 {
		t.Errorf("expected pc 2 with 1 failure, got pc %d failed %d", p.PC, p.Failed)
	}
}
