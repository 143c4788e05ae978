// Package sim binds the assembler, memory, and CPU into a runnable
// Y86-64 machine.
package sim

import (
	"fmt"
	"io"
	"os"

	"github.com/cloudingyu/y86sim/pkg/asm"
	"github.com/cloudingyu/y86sim/pkg/cpu"
	"github.com/cloudingyu/y86sim/pkg/isa"
	"github.com/cloudingyu/y86sim/pkg/mem"
	"github.com/cloudingyu/y86sim/pkg/trace"
)

// DefaultMaxInstructions caps a run as a guard against runaway programs.
const DefaultMaxInstructions = 10000

// Simulator owns one memory, one CPU, and one assembler. Instances share no
// mutable state, so independent simulators may run concurrently.
type Simulator struct {
	Memory *mem.Memory
	CPU    *cpu.CPU

	// MaxInstructions bounds Run; it is a loop guard, not an architectural
	// limit.
	MaxInstructions int64

	// TraceWriter receives per-step trace lines and run diagnostics.
	TraceWriter io.Writer

	assembler *asm.Assembler
	labels    map[string]int64
	tracing   bool

	recording   bool
	recordCache bool
	snapshots   []trace.Snapshot
}

// New creates a simulator with the given memory size (0 = default 4096).
func New(memSize int) *Simulator {
	memory := mem.New(memSize)
	return &Simulator{
		Memory:          memory,
		CPU:             cpu.New(memory),
		MaxInstructions: DefaultMaxInstructions,
		TraceWriter:     os.Stdout,
		assembler:       asm.New(),
		labels:          map[string]int64{},
	}
}

// Reset restores memory, CPU, and the symbol table to initial state.
func (s *Simulator) Reset() {
	s.Memory.Reset()
	s.CPU.Reset()
	s.labels = map[string]int64{}
	s.snapshots = nil
}

// RecordSnapshots enables per-step state capture for the visualizer stream.
// withCache includes the cache counters in each record.
func (s *Simulator) RecordSnapshots(withCache bool) {
	s.recording = true
	s.recordCache = withCache
}

// Snapshots returns the captured state records.
func (s *Simulator) Snapshots() []trace.Snapshot {
	return s.snapshots
}

// Labels returns the symbol table of the last assembled program.
func (s *Simulator) Labels() map[string]int64 {
	labels := make(map[string]int64, len(s.labels))
	for name, addr := range s.labels {
		labels[name] = addr
	}
	return labels
}

// LoadImage loads an object-byte image at the given address.
func (s *Simulator) LoadImage(image []byte, addr int64) error {
	return s.Memory.Load(image, addr)
}

// LoadAssembly resets the machine, assembles source, loads the image at
// address 0, and sets the initial stack pointer. A negative stackAddr
// selects the default of one past the last memory byte, so the first push
// writes the last valid 8 bytes.
func (s *Simulator) LoadAssembly(source string, stackAddr int64) error {
	s.Reset()

	image, err := s.assembler.Assemble(source)
	if err != nil {
		return err
	}
	s.labels = s.assembler.Labels()
	if err := s.Memory.Load(image, 0); err != nil {
		return err
	}

	if stackAddr < 0 {
		stackAddr = int64(s.Memory.Size())
	}
	s.CPU.SetRegister(isa.RSP, stackAddr)

	if s.recording {
		s.snapshots = append(s.snapshots, trace.Capture(s.CPU, s.Memory, s.recordCache))
	}
	return nil
}

// LoadAssemblyFile assembles and loads a source file.
func (s *Simulator) LoadAssemblyFile(filename string, stackAddr int64) error {
	source, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return s.LoadAssembly(string(source), stackAddr)
}

// Step executes one instruction, emitting a trace line and a snapshot when
// enabled. It returns true while execution should continue.
func (s *Simulator) Step() bool {
	if s.CPU.Status != isa.StatAOK {
		return false
	}

	cont := s.CPU.Step()

	if s.tracing {
		c := s.CPU
		fmt.Fprintf(s.TraceWriter, "step %4d  PC=0x%04x  %s  ZF=%d SF=%d OF=%d\n",
			c.InstructionCount, uint64(c.PC), isa.StatusName(c.Status),
			b2i(c.ZF), b2i(c.SF), b2i(c.OF))
	}
	if s.recording {
		s.snapshots = append(s.snapshots, trace.Capture(s.CPU, s.Memory, s.recordCache))
	}
	return cont
}

// Run retires instructions until the status leaves AOK or the instruction
// cap is reached, and returns the final status.
func (s *Simulator) Run(traceSteps bool) uint8 {
	s.tracing = traceSteps

	for s.CPU.Status == isa.StatAOK {
		if s.CPU.InstructionCount >= s.MaxInstructions {
			fmt.Fprintf(s.TraceWriter, "Warning: maximum instructions (%d) reached\n", s.MaxInstructions)
			break
		}
		s.Step()
	}
	return s.CPU.Status
}

// Register returns a register value by name ("rax" or "%rax"). An unknown
// name is an embedding bug and panics.
func (s *Simulator) Register(name string) int64 {
	code, ok := isa.RegisterByName(name)
	if !ok {
		panic(fmt.Sprintf("unknown register: %s", name))
	}
	return s.CPU.Register(code)
}

// SetRegister sets a register value by name.
func (s *Simulator) SetRegister(name string, value int64) {
	code, ok := isa.RegisterByName(name)
	if !ok {
		panic(fmt.Sprintf("unknown register: %s", name))
	}
	s.CPU.SetRegister(code, value)
}

// ReadMemory reads a 1- or 8-byte value. Other sizes are embedding bugs
// and panic.
func (s *Simulator) ReadMemory(addr int64, size int) (int64, error) {
	switch size {
	case 1:
		b, err := s.Memory.ReadByte(addr)
		return int64(b), err
	case 8:
		return s.Memory.ReadQuad(addr)
	default:
		panic(fmt.Sprintf("size must be 1 or 8, got %d", size))
	}
}

// WriteMemory writes a 1- or 8-byte value.
func (s *Simulator) WriteMemory(addr int64, value int64, size int) error {
	switch size {
	case 1:
		return s.Memory.WriteByte(addr, uint8(value))
	case 8:
		return s.Memory.WriteQuad(addr, value)
	default:
		panic(fmt.Sprintf("size must be 1 or 8, got %d", size))
	}
}

// DumpState returns the formatted CPU state.
func (s *Simulator) DumpState() string {
	return s.CPU.DumpState()
}

// DumpMemory returns a hexdump of length bytes from start.
func (s *Simulator) DumpMemory(start, length int) string {
	return s.Memory.Dump(start, length)
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}
