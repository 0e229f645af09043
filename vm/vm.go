package vm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/aryanA101a/pagesim/config"
)

// VM owns the shared devices and runs loaded processes to completion.
type VM struct {
	cfg    config.Config
	log    *slog.Logger
	ram    *Store
	swaps  []*Store
	loader *Loader

	mu      sync.Mutex
	procs   []*Process
	nextPID int

	console *console
	exitLog io.Writer
}

// NewVM validates cfg and formats RAM and the swap devices.
func NewVM(cfg config.Config, logger *slog.Logger) (*VM, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	loader, err := NewLoader()
	if err != nil {
		return nil, err
	}

	vm := &VM{
		cfg:     cfg,
		log:     logger,
		ram:     NewStore("ram", cfg.RAMSize, true),
		loader:  loader,
		nextPID: 1,
	}
	for i, size := range cfg.SwapSizes {
		vm.swaps = append(vm.swaps, NewStore(fmt.Sprintf("swp%d", i), size, cfg.SwapRandom))
	}

	logger.Info("devices formatted",
		"ram", humanize.IBytes(uint64(cfg.RAMSize)),
		"ram_frames", vm.ram.Frames(),
		"swaps", len(vm.swaps))
	return vm, nil
}

func validateConfig(cfg config.Config) error {
	check := func(name string, size int) error {
		if size <= 0 || size%PageSize != 0 {
			return errors.Errorf("%s: size %d is not a positive multiple of %d", name, size, PageSize)
		}
		if size/PageSize > MaxFrames {
			return errors.Errorf("%s: %d frames exceed the %d a page entry can address", name, size/PageSize, MaxFrames)
		}
		return nil
	}
	if err := check("ram", cfg.RAMSize); err != nil {
		return err
	}
	if len(cfg.SwapSizes) == 0 || len(cfg.SwapSizes) > MaxSwapDevices {
		return errors.Errorf("want 1 to %d swap devices, got %d", MaxSwapDevices, len(cfg.SwapSizes))
	}
	for i, size := range cfg.SwapSizes {
		if err := check(fmt.Sprintf("swp%d", i), size); err != nil {
			return err
		}
	}
	if cfg.CPUs <= 0 || cfg.TimeSlice <= 0 {
		return errors.Errorf("cpus and time_slice must be positive, got %d and %d", cfg.CPUs, cfg.TimeSlice)
	}
	return nil
}

func (vm *VM) RAM() *Store     { return vm.ram }
func (vm *VM) Swaps() []*Store { return vm.swaps }

func (vm *VM) Processes() []*Process {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return append([]*Process(nil), vm.procs...)
}

// Load reads the image at path and creates a process for it.
func (vm *VM) Load(path string) (*Process, error) {
	prog, err := vm.loader.Load(path)
	if err != nil {
		return nil, err
	}
	p, err := vm.Spawn(prog)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	vm.log.Info("process loaded", "pid", p.PID, "image", path, "priority", p.Priority, "instructions", len(prog.Code))
	return p, nil
}

// Spawn creates a process with a fresh address space running prog.
func (vm *VM) Spawn(prog *Program) (*Process, error) {
	if prog.Priority < 0 || prog.Priority >= MaxPrio {
		return nil, errors.Errorf("priority %d outside [0, %d)", prog.Priority, MaxPrio)
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()

	pid := vm.nextPID
	vm.nextPID++
	p := &Process{
		PID:      pid,
		Priority: prog.Priority,
		Code:     prog.Code,
		MM:       NewMM(pid, vm.ram, vm.swaps, vm.log),
	}
	vm.procs = append(vm.procs, p)
	return p, nil
}

// EnableStepMode makes every instruction wait for a key read from stdin.
func (vm *VM) EnableStepMode(stdin io.Reader) {
	vm.console = newConsole(stdin)
	if stdin == os.Stdin {
		vm.console.enableRawMode()
	}
}

// DumpOnExit writes a process's regions and page table to w just before
// its memory is released.
func (vm *VM) DumpOnExit(w io.Writer) {
	vm.exitLog = w
}

// Run executes every unfinished process on CPUs workers, TimeSlice
// instructions per turn. Workers take turns from the multi-level ready
// queue, so a process is on one worker at a time and higher priorities get
// more turns per round. Finished processes release their memory.
func (vm *VM) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := newMLQ()
	for _, p := range vm.Processes() {
		if !p.Done() {
			ready.add(p)
		}
	}

	if vm.console != nil {
		go vm.console.pollKeyboard(ctx)
		defer vm.console.disableRawMode()
	}

	var workers sync.WaitGroup
	for i := 0; i < vm.cfg.CPUs; i++ {
		workers.Add(1)
		go func(cpu *cpu) {
			defer workers.Done()
			for p := ready.get(); p != nil; p = ready.get() {
				if vm.runSlice(ctx, cpu, p) {
					ready.put(p)
					continue
				}
				ready.done()
			}
		}(newCpu(i, vm.log))
	}
	workers.Wait()
	return ctx.Err()
}

// runSlice runs up to TimeSlice instructions of p and reports whether p
// should be queued again.
func (vm *VM) runSlice(ctx context.Context, cpu *cpu, p *Process) bool {
	for n := 0; n < vm.cfg.TimeSlice && !p.Done(); n++ {
		if ctx.Err() != nil {
			return false
		}
		if vm.console != nil {
			if err := vm.console.waitKey(ctx); err != nil {
				return false
			}
		}
		cpu.step(p)
	}
	if !p.Done() {
		return true
	}

	stats := p.MM.Stats()
	vm.log.Info("process finished", "pid", p.PID, "failed", p.Failed,
		"faults", stats.Faults, "evictions", stats.Evictions, "swap_ins", stats.SwapIns)
	if vm.exitLog != nil {
		vm.mu.Lock()
		vm.dumpProcess(vm.exitLog, p)
		vm.mu.Unlock()
	}
	if err := p.MM.Release(); err != nil {
		vm.log.Error("releasing memory", "pid", p.PID, "error", err)
	}
	return false
}

// Dump writes every process's regions and page table, then the devices.
func (vm *VM) Dump(w io.Writer) {
	for _, p := range vm.Processes() {
		vm.dumpProcess(w, p)
	}
	vm.ram.Dump(w)
	for _, s := range vm.swaps {
		s.Dump(w)
	}
}

func (vm *VM) dumpProcess(w io.Writer, p *Process) {
	fmt.Fprintf(w, "pid %d pc %d/%d regs %v\n", p.PID, p.PC, len(p.Code), p.Regs)
	p.MM.DumpRegions(w)
	p.MM.DumpPageTable(w, 0, -1)
}

func (vm *VM) Close() {
	if vm.console != nil {
		vm.console.disableRawMode()
	}
	vm.loader.Close()
}
