package vm

import (
	"log/slog"

	"github.com/pkg/errors"
)

type cpu struct {
	id  int
	log *slog.Logger
}

func newCpu(id int, logger *slog.Logger) *cpu {
	return &cpu{id: id, log: logger.With("cpu", id)}
}

// step fetches the instruction at p.PC, advances PC and executes it. A
// failed instruction is reported but PC stays advanced, so the program
// carries on with the next one.
func (cpu *cpu) step(p *Process) error {
	if p.Done() {
		return errors.Errorf("pid %d: no instruction at pc %d", p.PID, p.PC)
	}
	ins := p.Code[p.PC]
	pc := p.PC
	p.PC++

	err := cpu.decodeAndExecuteInstruction(p, ins)
	if err != nil {
		p.Failed++
		cpu.log.Warn("instruction failed", "pid", p.PID, "pc", pc, "op", ins.Op.String(), "error", err)
	}
	return err
}

func (cpu *cpu) decodeAndExecuteInstruction(p *Process, ins Instruction) error {
	mm := p.MM
	a := ins.Args

	switch ins.Op {
	case OP_CALC:
		cpu.log.Debug("CALC", "pid", p.PID, "pc", p.PC-1)
		return nil

	case OP_ALLOC:
		size, reg := a[0], a[1]
		cpu.log.Debug("ALLOC", "pid", p.PID, "pc", p.PC-1, "size", size, "reg", reg)

		if err := checkReg(p, reg); err != nil {
			return err
		}
		addr, err := mm.Alloc(int(reg), int(size))
		if err != nil {
			return err
		}
		p.Regs[reg] = uint32(addr)
		return nil

	case OP_FREE:
		reg := a[0]
		cpu.log.Debug("FREE", "pid", p.PID, "pc", p.PC-1, "reg", reg)

		return mm.Free(int(reg))

	case OP_READ:
		src, offset, dst := a[0], a[1], a[2]
		cpu.log.Debug("READ", "pid", p.PID, "pc", p.PC-1, "src", src, "offset", offset, "dst", dst)

		if err := checkReg(p, dst); err != nil {
			return err
		}
		value, err := mm.ReadRegion(int(src), int(offset))
		if err != nil {
			return err
		}
		p.Regs[dst] = uint32(value)
		return nil

	case OP_WRITE:
		data, dst, offset := a[0], a[1], a[2]
		cpu.log.Debug("WRITE", "pid", p.PID, "pc", p.PC-1, "data", data, "dst", dst, "offset", offset)

		return mm.WriteRegion(int(dst), int(offset), byte(data))
	}
	return errors.Errorf("pid %d: unknown opcode %d", p.PID, ins.Op)
}

func checkReg(p *Process, r uint32) error {
	if r >= NumRegs {
		return errors.Wrapf(ErrInvalidRegion, "pid %d: register %d", p.PID, r)
	}
	return nil
}
