package vm

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// Program is a parsed image. It is shared read-only by every process
// created from it.
type Program struct {
	Priority int
	Code     []Instruction
}

// Loader parses program images and keeps the results in a cache so an image
// started several times is parsed once.
type Loader struct {
	cache *ristretto.Cache[string, *Program]
}

func NewLoader() (*Loader, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, *Program]{
		NumCounters: 1 << 10,
		MaxCost:     1 << 16, /* instructions */
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "program cache")
	}
	return &Loader{cache: cache}, nil
}

// Load returns the program stored at path.
func (l *Loader) Load(path string) (*Program, error) {
	if prog, ok := l.cache.Get(path); ok {
		return prog, nil
	}
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := ParseProgram(bytes.NewReader(file))
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	l.cache.Set(path, prog, int64(len(prog.Code))+1)
	l.cache.Wait()
	return prog, nil
}

func (l *Loader) Close() {
	l.cache.Close()
}

// ParseProgram reads the text image format: a "<priority> <count>" header
// followed by count instructions, one per line. Blank lines and lines
// starting with # are skipped.
func ParseProgram(r io.Reader) (*Program, error) {
	sc := bufio.NewScanner(r)
	lineNo := 0
	next := func() ([]string, bool) {
		for sc.Scan() {
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			return strings.Fields(line), true
		}
		return nil, false
	}

	header, ok := next()
	if !ok {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, errors.New("empty program")
	}
	if len(header) != 2 {
		return nil, errors.Errorf("line %d: header wants <priority> <count>, got %q", lineNo, strings.Join(header, " "))
	}
	priority, err := strconv.Atoi(header[0])
	if err != nil {
		return nil, errors.Wrapf(err, "line %d: priority", lineNo)
	}
	if priority < 0 || priority >= MaxPrio {
		return nil, errors.Errorf("line %d: priority %d outside [0, %d)", lineNo, priority, MaxPrio)
	}
	count, err := strconv.Atoi(header[1])
	if err != nil || count < 0 {
		return nil, errors.Errorf("line %d: bad instruction count %q", lineNo, header[1])
	}

	prog := &Program{Priority: priority, Code: make([]Instruction, 0, count)}
	for {
		fields, ok := next()
		if !ok {
			break
		}
		ins, err := parseInstruction(fields)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		prog.Code = append(prog.Code, ins)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(prog.Code) != count {
		return nil, errors.Errorf("header announces %d instructions, found %d", count, len(prog.Code))
	}
	return prog, nil
}

func parseInstruction(fields []string) (Instruction, error) {
	op, ok := opcodeNames[strings.ToLower(fields[0])]
	if !ok {
		return Instruction{}, errors.Errorf("unknown instruction %q", fields[0])
	}
	args := fields[1:]
	if len(args) != opcodeArity[op] {
		return Instruction{}, errors.Errorf("%s takes %d operands, got %d", op, opcodeArity[op], len(args))
	}

	ins := Instruction{Op: op}
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return Instruction{}, errors.Wrapf(err, "%s operand %d", op, i)
		}
		ins.Args[i] = uint32(v)
	}

	// registers must exist, write data must fit a byte
	var regs []uint32
	switch op {
	case OP_ALLOC:
		regs = []uint32{ins.Args[1]}
	case OP_FREE:
		regs = []uint32{ins.Args[0]}
	case OP_READ:
		regs = []uint32{ins.Args[0], ins.Args[2]}
	case OP_WRITE:
		regs = []uint32{ins.Args[1]}
		if ins.Args[0] > 0xFF {
			return Instruction{}, errors.Errorf("write data %d does not fit a byte", ins.Args[0])
		}
	}
	for _, r := range regs {
		if r >= NumRegs {
			return Instruction{}, errors.Errorf("%s: register %d out of range", op, r)
		}
	}
	return ins, nil
}
