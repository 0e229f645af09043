package vm

// Process is the descriptor the CPU executes. Its memory manager is owned
// by the process alone.
type Process struct {
	PID      int
	Priority int
	Code     []Instruction
	PC       int
	Regs     [NumRegs]uint32
	MM       *MM

	// instructions that reported a failure
	Failed int
}

func (p *Process) Done() bool { return p.PC >= len(p.Code) }
