package pcpu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// MaxSteps is the maximum number of steps in a Program.
const MaxSteps = 16

// Error conditions.
var (
	ErrTooManySteps = fmt.Errorf("program exceeds %d steps", MaxSteps)
	ErrImm          = errors.New("bad immediate")
)

// Step is one program entry.
type Step struct {
	Op  Op
	Imm uint8
}

func (st Step) String() string {
	if st.Imm == 0 {
		return st.Op.String()
	}
	return fmt.Sprintf("%s:0x%02X", st.Op, st.Imm)
}

// ParseStep parses "OP" or "OP:IMM", where IMM is a decimal, 0x hexadecimal, or 0o octal octet.
func ParseStep(input string) (st Step, e error) {
	name, imm, hasImm := strings.Cut(input, ":")
	if st.Op, e = ParseOp(name); e != nil {
		return Step{}, fmt.Errorf("%w %q", e, name)
	}
	if hasImm {
		u, e := strconv.ParseUint(imm, 0, 8)
		if e != nil {
			return Step{}, fmt.Errorf("%w %q: %w", ErrImm, imm, e)
		}
		st.Imm = uint8(u)
	}
	return st, nil
}

// Program is an ordered list of steps.
// Steps are applied to each descriptor in order before advancing to the next descriptor.
// A nil Program disables the pCPU.
type Program []Step

// Validate checks the program.
func (prog Program) Validate() error {
	if len(prog) > MaxSteps {
		return ErrTooManySteps
	}
	for i, st := range prog {
		if !st.Op.Valid() {
			return fmt.Errorf("step %d: %w", i, ErrOp)
		}
	}
	return nil
}

// Mutates determines whether any step writes to the blob.
func (prog Program) Mutates() bool {
	for _, st := range prog {
		if st.Op.Mutates() {
			return true
		}
	}
	return false
}

func (prog Program) String() string {
	tokens := make([]string, len(prog))
	for i, st := range prog {
		tokens[i] = st.String()
	}
	return strings.Join(tokens, " ")
}

// MarshalText implements encoding.TextMarshaler interface.
func (prog Program) MarshalText() (text []byte, e error) {
	if e = prog.Validate(); e != nil {
		return nil, e
	}
	return []byte(prog.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler interface.
func (prog *Program) UnmarshalText(text []byte) (e error) {
	*prog, e = ParseProgram(string(text))
	return e
}

// ParseProgram parses a program in text form, such as "XOR8:0xFF FNV64".
// Steps are separated by whitespace or commas; shell quoting is honored.
func ParseProgram(input string) (prog Program, e error) {
	words, e := shellquote.Split(strings.ReplaceAll(input, ",", " "))
	if e != nil {
		return nil, e
	}
	for _, word := range words {
		st, e := ParseStep(word)
		if e != nil {
			return nil, e
		}
		prog = append(prog, st)
	}
	if e = prog.Validate(); e != nil {
		return nil, e
	}
	return prog, nil
}
