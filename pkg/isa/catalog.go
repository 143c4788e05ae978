package isa

import "fmt"

// OperandShape describes the textual operand form an instruction takes.
type OperandShape int

const (
	ShapeNone   OperandShape = iota // halt, nop, ret
	ShapeRegReg                     // rrmovq/cmovXX/OPq rA, rB
	ShapeImmReg                     // irmovq $V, rB
	ShapeRegMem                     // rmmovq rA, D(rB)
	ShapeMemReg                     // mrmovq D(rB), rA
	ShapeDest                       // jXX/call Dest
	ShapeReg                        // pushq/popq rA
)

// Spec holds the static encoding metadata for one mnemonic.
type Spec struct {
	ICode uint8
	IFun  uint8
	Shape OperandShape
}

// Catalog maps each mnemonic to its encoding. Adding an instruction is a
// one-line table edit.
var Catalog = map[string]Spec{
	"halt":   {IHalt, 0, ShapeNone},
	"nop":    {INop, 0, ShapeNone},
	"ret":    {IRet, 0, ShapeNone},
	"rrmovq": {IRRMovq, CYes, ShapeRegReg},
	"cmovle": {IRRMovq, CLE, ShapeRegReg},
	"cmovl":  {IRRMovq, CL, ShapeRegReg},
	"cmove":  {IRRMovq, CE, ShapeRegReg},
	"cmovne": {IRRMovq, CNE, ShapeRegReg},
	"cmovge": {IRRMovq, CGE, ShapeRegReg},
	"cmovg":  {IRRMovq, CG, ShapeRegReg},
	"irmovq": {IIRMovq, 0, ShapeImmReg},
	"rmmovq": {IRMMovq, 0, ShapeRegMem},
	"mrmovq": {IMRMovq, 0, ShapeMemReg},
	"addq":   {IOpq, ALUAdd, ShapeRegReg},
	"subq":   {IOpq, ALUSub, ShapeRegReg},
	"andq":   {IOpq, ALUAnd, ShapeRegReg},
	"xorq":   {IOpq, ALUXor, ShapeRegReg},
	"jmp":    {IJXX, CYes, ShapeDest},
	"jle":    {IJXX, CLE, ShapeDest},
	"jl":     {IJXX, CL, ShapeDest},
	"je":     {IJXX, CE, ShapeDest},
	"jne":    {IJXX, CNE, ShapeDest},
	"jge":    {IJXX, CGE, ShapeDest},
	"jg":     {IJXX, CG, ShapeDest},
	"call":   {ICall, 0, ShapeDest},
	"pushq":  {IPushq, 0, ShapeReg},
	"popq":   {IPopq, 0, ShapeReg},
}

// aluNames maps ALU ifuns back to mnemonics for disassembly.
var aluNames = [4]string{"addq", "subq", "andq", "xorq"}

// condSuffixes maps condition ifuns to mnemonic suffixes ("" = unconditional).
var condSuffixes = [7]string{"", "le", "l", "e", "ne", "ge", "g"}

// Disassemble renders a decoded instruction as assembly text. Unknown
// encodings render as a marker instead of failing.
func Disassemble(icode, ifun, rA, rB uint8, valC int64) string {
	switch icode {
	case IHalt:
		return "halt"
	case INop:
		return "nop"
	case IRet:
		return "ret"
	case IRRMovq:
		if int(ifun) >= len(condSuffixes) {
			return "(bad)"
		}
		if ifun == CYes {
			return fmt.Sprintf("rrmovq %s, %s", RegisterNames[rA&0xF], RegisterNames[rB&0xF])
		}
		return fmt.Sprintf("cmov%s %s, %s", condSuffixes[ifun], RegisterNames[rA&0xF], RegisterNames[rB&0xF])
	case IIRMovq:
		return fmt.Sprintf("irmovq $%d, %s", valC, RegisterNames[rB&0xF])
	case IRMMovq:
		return fmt.Sprintf("rmmovq %s, %d(%s)", RegisterNames[rA&0xF], valC, RegisterNames[rB&0xF])
	case IMRMovq:
		return fmt.Sprintf("mrmovq %d(%s), %s", valC, RegisterNames[rB&0xF], RegisterNames[rA&0xF])
	case IOpq:
		if int(ifun) >= len(aluNames) {
			return "(bad)"
		}
		return fmt.Sprintf("%s %s, %s", aluNames[ifun], RegisterNames[rA&0xF], RegisterNames[rB&0xF])
	case IJXX:
		if int(ifun) >= len(condSuffixes) {
			return "(bad)"
		}
		if ifun == CYes {
			return fmt.Sprintf("jmp 0x%x", valC)
		}
		return fmt.Sprintf("j%s 0x%x", condSuffixes[ifun], valC)
	case ICall:
		return fmt.Sprintf("call 0x%x", valC)
	case IPushq:
		return fmt.Sprintf("pushq %s", RegisterNames[rA&0xF])
	case IPopq:
		return fmt.Sprintf("popq %s", RegisterNames[rA&0xF])
	default:
		return "(bad)"
	}
}
