package cpu

import (
	"fmt"
	"strings"

	"github.com/cloudingyu/y86sim/pkg/isa"
	"github.com/cloudingyu/y86sim/pkg/mem"
)

// CPU models the sequential Y86-64 processor: 15 general-purpose 64-bit
// registers, a program counter, condition codes, and a status word. One
// instruction is fully decoded and retired per Step; there is no pipelining.
type CPU struct {
	memory    *mem.Memory
	registers [isa.NumRegisters]int64

	PC     int64
	ZF     bool
	SF     bool
	OF     bool
	Status uint8

	InstructionCount int64
	CycleCount       int64
}

// New creates a CPU bound to the given memory.
func New(memory *mem.Memory) *CPU {
	c := &CPU{memory: memory}
	c.Reset()
	return c
}

// Reset restores all architectural state to initial values. ZF starts set.
func (c *CPU) Reset() {
	c.registers = [isa.NumRegisters]int64{}
	c.PC = 0
	c.ZF = true
	c.SF = false
	c.OF = false
	c.Status = isa.StatAOK
	c.InstructionCount = 0
	c.CycleCount = 0
}

// Register returns the value of a register. RNone reads as zero. An index
// above 15 is an embedding bug and panics.
func (c *CPU) Register(reg uint8) int64 {
	if reg == isa.RNone {
		return 0
	}
	if reg >= isa.NumRegisters {
		panic(fmt.Sprintf("invalid register: %d", reg))
	}
	return c.registers[reg]
}

// SetRegister stores a value into a register. Writes to RNone are discarded.
// int64 arithmetic wraps natively, so the stored value is already reduced
// mod 2^64.
func (c *CPU) SetRegister(reg uint8, value int64) {
	if reg == isa.RNone {
		return
	}
	if reg >= isa.NumRegisters {
		panic(fmt.Sprintf("invalid register: %d", reg))
	}
	c.registers[reg] = value
}

// setFlags updates ZF/SF/OF after an ALU operation. OF is derived from the
// operand and result signs of the wrapped 64-bit result.
func (c *CPU) setFlags(op uint8, a, b, result int64) {
	c.ZF = result == 0
	c.SF = result < 0
	switch op {
	case isa.ALUAdd:
		c.OF = (a > 0 && b > 0 && result < 0) || (a < 0 && b < 0 && result > 0)
	case isa.ALUSub:
		// result = b - a
		c.OF = (a > 0 && b < 0 && result < 0) || (a < 0 && b > 0 && result > 0)
	default:
		c.OF = false
	}
}

// condition evaluates a cmov/jump condition against the current flags.
func (c *CPU) condition(ifun uint8) bool {
	return isa.Condition(ifun, c.ZF, c.SF, c.OF)
}

// fetch reads and splits the instruction at PC. On a fault it sets Status
// and returns ok=false.
func (c *CPU) fetch() (icode, ifun, rA, rB uint8, valC int64, ok bool) {
	rA, rB = isa.RNone, isa.RNone

	if !c.memory.Valid(c.PC, 1) {
		c.Status = isa.StatADR
		return
	}
	byte0, _ := c.memory.ReadByte(c.PC)
	icode = byte0 >> 4
	ifun = byte0 & 0xF

	if !isa.ValidICode(icode) {
		c.Status = isa.StatINS
		return
	}

	length := isa.InstrLength(icode)
	if !c.memory.Valid(c.PC, length) {
		c.Status = isa.StatADR
		return
	}

	switch icode {
	case isa.IRRMovq, isa.IOpq, isa.IPushq, isa.IPopq:
		byte1, _ := c.memory.ReadByte(c.PC + 1)
		rA = byte1 >> 4
		rB = byte1 & 0xF
	case isa.IJXX, isa.ICall:
		valC, _ = c.memory.ReadQuad(c.PC + 1)
	case isa.IIRMovq, isa.IRMMovq, isa.IMRMovq:
		byte1, _ := c.memory.ReadByte(c.PC + 1)
		rA = byte1 >> 4
		rB = byte1 & 0xF
		valC, _ = c.memory.ReadQuad(c.PC + 2)
	}
	return icode, ifun, rA, rB, valC, true
}

// Step executes one instruction. It returns true while execution should
// continue. Faults are recorded in Status, never raised: a step either
// retires an instruction or retires a fault.
func (c *CPU) Step() bool {
	if c.Status != isa.StatAOK {
		return false
	}

	icode, ifun, rA, rB, valC, ok := c.fetch()
	if !ok {
		return false
	}

	nextPC := c.PC + int64(isa.InstrLength(icode))
	valA := c.Register(rA)
	valB := c.Register(rB)

	switch icode {
	case isa.IHalt:
		c.Status = isa.StatHLT
		return false

	case isa.INop:

	case isa.IRRMovq:
		if c.condition(ifun) {
			c.SetRegister(rB, valA)
		}

	case isa.IIRMovq:
		c.SetRegister(rB, valC)

	case isa.IRMMovq:
		addr := valB + valC
		if !c.memory.Valid(addr, 8) {
			c.Status = isa.StatADR
			return false
		}
		c.memory.WriteQuad(addr, valA)

	case isa.IMRMovq:
		addr := valB + valC
		if !c.memory.Valid(addr, 8) {
			c.Status = isa.StatADR
			return false
		}
		value, _ := c.memory.ReadQuad(addr)
		c.SetRegister(rA, value)

	case isa.IOpq:
		var result int64
		switch ifun {
		case isa.ALUAdd:
			result = valB + valA
		case isa.ALUSub:
			result = valB - valA
		case isa.ALUAnd:
			result = valB & valA
		case isa.ALUXor:
			result = valB ^ valA
		default:
			c.Status = isa.StatINS
			return false
		}
		c.setFlags(ifun, valA, valB, result)
		c.SetRegister(rB, result)

	case isa.IJXX:
		if c.condition(ifun) {
			nextPC = valC
		}

	case isa.ICall:
		sp := c.Register(isa.RSP) - 8
		if !c.memory.Valid(sp, 8) {
			c.Status = isa.StatADR
			return false
		}
		c.memory.WriteQuad(sp, nextPC)
		c.SetRegister(isa.RSP, sp)
		nextPC = valC

	case isa.IRet:
		sp := c.Register(isa.RSP)
		if !c.memory.Valid(sp, 8) {
			c.Status = isa.StatADR
			return false
		}
		nextPC, _ = c.memory.ReadQuad(sp)
		c.SetRegister(isa.RSP, sp+8)

	case isa.IPushq:
		sp := c.Register(isa.RSP) - 8
		if !c.memory.Valid(sp, 8) {
			c.Status = isa.StatADR
			return false
		}
		c.memory.WriteQuad(sp, valA)
		c.SetRegister(isa.RSP, sp)

	case isa.IPopq:
		sp := c.Register(isa.RSP)
		if !c.memory.Valid(sp, 8) {
			c.Status = isa.StatADR
			return false
		}
		value, _ := c.memory.ReadQuad(sp)
		c.SetRegister(isa.RSP, sp+8)
		c.SetRegister(rA, value)
	}

	c.PC = nextPC
	c.InstructionCount++
	c.CycleCount++
	return true
}

// DumpRegisters renders all register values, three per row.
func (c *CPU) DumpRegisters() string {
	var b strings.Builder
	b.WriteString("Registers:")
	for i := 0; i < isa.NumRegisters; i += 3 {
		b.WriteString("\n ")
		for j := i; j < i+3 && j < isa.NumRegisters; j++ {
			fmt.Fprintf(&b, " %5s: 0x%016x", isa.RegisterNames[j], uint64(c.registers[j]))
		}
	}
	return b.String()
}

// DumpState renders the PC, status, condition codes, counters, and registers.
func (c *CPU) DumpState() string {
	var b strings.Builder
	fmt.Fprintf(&b, "PC: 0x%016x\n", uint64(c.PC))
	fmt.Fprintf(&b, "Status: %s\n", isa.StatusName(c.Status))
	fmt.Fprintf(&b, "Condition Codes: ZF=%d SF=%d OF=%d\n", b2i(c.ZF), b2i(c.SF), b2i(c.OF))
	fmt.Fprintf(&b, "Instructions: %d  Cycles: %d\n", c.InstructionCount, c.CycleCount)
	b.WriteString(c.DumpRegisters())
	return b.String()
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}
