package asm

import (
	"encoding/binary"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/cloudingyu/y86sim/pkg/isa"
)

// memOperandRE matches a memory operand: optional signed displacement
// followed by a parenthesized register, e.g. "8(%rsp)" or "(%rbp)".
var memOperandRE = regexp.MustCompile(`^(-?\d+|-?0[xX][0-9a-fA-F]+)?\((%\w+)\)$`)

// fixup records an unresolved label reference emitted during pass one.
type fixup struct {
	pos   int64  // output offset of the 8-byte placeholder
	label string // referenced label
	line  int    // source line for error reporting
}

// Assembler translates Y86-64 assembly into a positioned byte image using
// two passes: pass one emits bytes and collects fixups for labels not yet
// defined, pass two patches the placeholders.
type Assembler struct {
	labels  map[string]int64
	output  []byte
	address int64
	pending []fixup
}

// New creates an empty assembler.
func New() *Assembler {
	a := &Assembler{}
	a.Reset()
	return a
}

// Reset clears the symbol table, output buffer, and pending references.
func (a *Assembler) Reset() {
	a.labels = make(map[string]int64)
	a.output = nil
	a.address = 0
	a.pending = nil
}

// Labels returns a copy of the symbol table.
func (a *Assembler) Labels() map[string]int64 {
	labels := make(map[string]int64, len(a.labels))
	for name, addr := range a.labels {
		labels[name] = addr
	}
	return labels
}

// Assemble translates source into a machine-code image. On error the image
// is nil and the error carries the source line.
func (a *Assembler) Assemble(source string) ([]byte, error) {
	a.Reset()

	for lineNum, line := range strings.Split(source, "\n") {
		if err := a.assembleLine(line, lineNum+1); err != nil {
			return nil, err
		}
	}
	if err := a.resolve(); err != nil {
		return nil, err
	}

	image := make([]byte, len(a.output))
	copy(image, a.output)
	return image, nil
}

// AssembleFile reads and assembles a source file.
func (a *Assembler) AssembleFile(filename string) ([]byte, error) {
	source, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return a.Assemble(string(source))
}

// emitByte writes one byte at the current address. Writing into a hole
// overwrites; writing at the end extends; a gap is zero-filled.
func (a *Assembler) emitByte(b uint8) {
	for int64(len(a.output)) < a.address {
		a.output = append(a.output, 0)
	}
	if int64(len(a.output)) == a.address {
		a.output = append(a.output, b)
	} else {
		a.output[a.address] = b
	}
	a.address++
}

// emitQuad writes an 8-byte little-endian value at the current address.
func (a *Assembler) emitQuad(v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	for _, b := range buf {
		a.emitByte(b)
	}
}

// emitLabelRef emits a zero placeholder and records a fixup for pass two.
func (a *Assembler) emitLabelRef(label string, line int) {
	a.pending = append(a.pending, fixup{pos: a.address, label: label, line: line})
	a.emitQuad(0)
}

// resolve patches all placeholders with their label addresses.
func (a *Assembler) resolve() error {
	for _, f := range a.pending {
		addr, ok := a.labels[f.label]
		if !ok {
			return errorf(ErrUndefinedLabel, f.line, "", "undefined label: %s", f.label)
		}
		binary.LittleEndian.PutUint64(a.output[f.pos:], uint64(addr))
	}
	return nil
}

func (a *Assembler) assembleLine(line string, lineNum int) error {
	raw := line

	// Strip comments.
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	// A leading "name:" binds a label; the remainder assembles as its own line.
	if i := strings.Index(line, ":"); i >= 0 {
		label := strings.TrimSpace(line[:i])
		if _, exists := a.labels[label]; exists {
			return errorf(ErrDuplicateLabel, lineNum, raw, "duplicate label: %s", label)
		}
		a.labels[label] = a.address
		line = strings.TrimSpace(line[i+1:])
		if line == "" {
			return nil
		}
	}

	// Split mnemonic from operands on the first whitespace run.
	mnemonic := line
	operands := ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		mnemonic = line[:i]
		operands = strings.TrimSpace(line[i+1:])
	}
	mnemonic = strings.ToLower(mnemonic)

	switch mnemonic {
	case ".pos":
		addr, err := a.parseImmediate(operands, lineNum, raw)
		if err != nil {
			return err
		}
		a.address = addr
		return nil

	case ".align":
		n, err := a.parseImmediate(operands, lineNum, raw)
		if err != nil {
			return err
		}
		if n <= 0 {
			return errorf(ErrBadImmediate, lineNum, raw, "bad alignment: %s", operands)
		}
		for a.address%n != 0 {
			a.emitByte(0)
		}
		return nil

	case ".quad":
		return a.assembleQuad(operands, lineNum, raw)
	}

	spec, ok := isa.Catalog[mnemonic]
	if !ok {
		return errorf(ErrUnknownInstruction, lineNum, raw, "unknown instruction: %s", mnemonic)
	}

	a.emitByte(spec.ICode<<4 | spec.IFun)

	switch spec.Shape {
	case isa.ShapeNone:
		return nil

	case isa.ShapeRegReg:
		ops, err := splitOperands(operands, 2, mnemonic, lineNum, raw)
		if err != nil {
			return err
		}
		rA, err := a.parseRegister(ops[0], lineNum, raw)
		if err != nil {
			return err
		}
		rB, err := a.parseRegister(ops[1], lineNum, raw)
		if err != nil {
			return err
		}
		a.emitByte(rA<<4 | rB)
		return nil

	case isa.ShapeImmReg:
		ops, err := splitOperands(operands, 2, mnemonic, lineNum, raw)
		if err != nil {
			return err
		}
		rB, err := a.parseRegister(ops[1], lineNum, raw)
		if err != nil {
			return err
		}
		a.emitByte(isa.RNone<<4 | rB)
		return a.emitValueOrLabel(ops[0], lineNum, raw)

	case isa.ShapeRegMem:
		ops, err := splitOperands(operands, 2, mnemonic, lineNum, raw)
		if err != nil {
			return err
		}
		rA, err := a.parseRegister(ops[0], lineNum, raw)
		if err != nil {
			return err
		}
		disp, rB, err := a.parseMemory(ops[1], lineNum, raw)
		if err != nil {
			return err
		}
		a.emitByte(rA<<4 | rB)
		a.emitQuad(disp)
		return nil

	case isa.ShapeMemReg:
		ops, err := splitOperands(operands, 2, mnemonic, lineNum, raw)
		if err != nil {
			return err
		}
		disp, rB, err := a.parseMemory(ops[0], lineNum, raw)
		if err != nil {
			return err
		}
		rA, err := a.parseRegister(ops[1], lineNum, raw)
		if err != nil {
			return err
		}
		a.emitByte(rA<<4 | rB)
		a.emitQuad(disp)
		return nil

	case isa.ShapeDest:
		if operands == "" {
			return errorf(ErrWrongArity, lineNum, raw, "expected 1 operand for %s", mnemonic)
		}
		return a.emitValueOrLabel(operands, lineNum, raw)

	case isa.ShapeReg:
		if operands == "" || strings.Contains(operands, ",") {
			return errorf(ErrWrongArity, lineNum, raw, "expected 1 operand for %s", mnemonic)
		}
		rA, err := a.parseRegister(operands, lineNum, raw)
		if err != nil {
			return err
		}
		a.emitByte(rA<<4 | isa.RNone)
		return nil
	}
	return nil
}

// assembleQuad handles the .quad directive: a literal, a defined label, or
// a forward reference.
func (a *Assembler) assembleQuad(operand string, lineNum int, raw string) error {
	operand = strings.TrimSpace(operand)
	if operand == "" {
		return errorf(ErrWrongArity, lineNum, raw, "expected 1 operand for .quad")
	}
	if addr, ok := a.labels[operand]; ok {
		a.emitQuad(addr)
		return nil
	}
	if isIdentifier(operand) {
		a.emitLabelRef(operand, lineNum)
		return nil
	}
	v, err := a.parseImmediate(operand, lineNum, raw)
	if err != nil {
		return err
	}
	a.emitQuad(v)
	return nil
}

// emitValueOrLabel emits the 8-byte value position of irmovq/jXX/call:
// either a resolved label, a deferred label reference, or an immediate.
// A leading $ is accepted on label references as well as literals.
func (a *Assembler) emitValueOrLabel(operand string, lineNum int, raw string) error {
	name := strings.TrimSpace(operand)
	name = strings.TrimPrefix(name, "$")

	if addr, ok := a.labels[name]; ok {
		a.emitQuad(addr)
		return nil
	}
	if isIdentifier(name) {
		a.emitLabelRef(name, lineNum)
		return nil
	}
	v, err := a.parseImmediate(operand, lineNum, raw)
	if err != nil {
		return err
	}
	a.emitQuad(v)
	return nil
}

// parseRegister parses a %-prefixed register name, case-insensitively.
func (a *Assembler) parseRegister(s string, lineNum int, raw string) (uint8, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "%") {
		return 0, errorf(ErrInvalidRegister, lineNum, raw, "invalid register: %s", s)
	}
	code, ok := isa.RegisterByName(s)
	if !ok {
		return 0, errorf(ErrInvalidRegister, lineNum, raw, "invalid register: %s", s)
	}
	return code, nil
}

// parseImmediate parses a signed decimal or 0x-hex literal with an optional
// leading $.
func (a *Assembler) parseImmediate(s string, lineNum int, raw string) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return 0, errorf(ErrBadImmediate, lineNum, raw, "empty immediate")
	}

	neg := false
	body := s
	if strings.HasPrefix(body, "-") {
		neg = true
		body = body[1:]
	}

	var value int64
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		// Hex literals may use the full 64-bit pattern.
		u, err := strconv.ParseUint(body[2:], 16, 64)
		if err != nil {
			return 0, errorf(ErrBadImmediate, lineNum, raw, "bad immediate: %s", s)
		}
		value = int64(u)
	} else {
		v, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			return 0, errorf(ErrBadImmediate, lineNum, raw, "bad immediate: %s", s)
		}
		value = v
	}
	if neg {
		value = -value
	}
	return value, nil
}

// parseMemory parses a memory operand "D(%reg)" with an optional signed
// displacement.
func (a *Assembler) parseMemory(s string, lineNum int, raw string) (int64, uint8, error) {
	s = strings.TrimSpace(s)
	m := memOperandRE.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, errorf(ErrInvalidMemoryOperand, lineNum, raw, "invalid memory operand: %s", s)
	}

	var disp int64
	if m[1] != "" {
		v, err := a.parseImmediate(m[1], lineNum, raw)
		if err != nil {
			return 0, 0, err
		}
		disp = v
	}
	reg, err := a.parseRegister(m[2], lineNum, raw)
	if err != nil {
		return 0, 0, err
	}
	return disp, reg, nil
}

// splitOperands splits a comma-separated operand list and checks arity.
func splitOperands(operands string, want int, mnemonic string, lineNum int, raw string) ([]string, error) {
	if strings.TrimSpace(operands) == "" {
		return nil, errorf(ErrWrongArity, lineNum, raw, "expected %d operands for %s", want, mnemonic)
	}
	parts := strings.Split(operands, ",")
	if len(parts) != want {
		return nil, errorf(ErrWrongArity, lineNum, raw, "expected %d operands for %s", want, mnemonic)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

// isIdentifier reports whether s looks like a label name: a letter or
// underscore followed by letters, digits, or underscores.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
