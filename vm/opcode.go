package vm

type opcode uint8

const (
	OP_CALC  opcode = iota /* compute only, no memory access */
	OP_ALLOC               /* alloc <size> <reg> */
	OP_FREE                /* free <reg> */
	OP_READ                /* read <source reg> <offset> <destination reg> */
	OP_WRITE               /* write <data> <destination reg> <offset> */
)

// NumRegs is the size of a process register file. Register indexes double
// as region ids, so it must not exceed SymbolTableSize.
const NumRegs = 10

var opcodeNames = map[string]opcode{
	"calc":  OP_CALC,
	"alloc": OP_ALLOC,
	"free":  OP_FREE,
	"read":  OP_READ,
	"write": OP_WRITE,
}

// operand count per opcode
var opcodeArity = [...]int{
	OP_CALC:  0,
	OP_ALLOC: 2,
	OP_FREE:  1,
	OP_READ:  3,
	OP_WRITE: 3,
}

func (op opcode) String() string {
	for name, o := range opcodeNames {
		if o == op {
			return name
		}
	}
	return "unknown"
}

// Instruction is one decoded program line.
type Instruction struct {
	Op   opcode
	Args [3]uint32
}
