package sim

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/cloudingyu/y86sim/pkg/isa"
)

func load(t *testing.T, source string) *Simulator {
	t.Helper()
	s := New(0)
	s.TraceWriter = io.Discard
	if err := s.LoadAssembly(source, -1); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return s
}

// TestHaltOnly: the halt itself does not count as retired.
func TestHaltOnly(t *testing.T) {
	s := load(t, "halt\n")
	status := s.Run(false)
	if status != isa.StatHLT {
		t.Errorf("status %s, want HLT", isa.StatusName(status))
	}
	if s.CPU.InstructionCount != 0 {
		t.Errorf("instruction count %d, want 0", s.CPU.InstructionCount)
	}
}

func TestImmediateAndRegisterMove(t *testing.T) {
	s := load(t, `
    irmovq $100, %rax
    rrmovq %rax, %rbx
    halt
`)
	status := s.Run(false)
	if status != isa.StatHLT {
		t.Fatalf("status %s, want HLT", isa.StatusName(status))
	}
	if got := s.Register("rax"); got != 100 {
		t.Errorf("rax = %d, want 100", got)
	}
	if got := s.Register("rbx"); got != 100 {
		t.Errorf("rbx = %d, want 100", got)
	}
}

// TestCountedLoop sums five increments of 1 into %rax.
func TestCountedLoop(t *testing.T) {
	s := load(t, `
    irmovq $5, %rcx
    irmovq $0, %rax
    irmovq $1, %rsi
loop:
    andq %rcx, %rcx
    je done
    addq %rsi, %rax
    subq %rsi, %rcx
    jmp loop
done:
    halt
`)
	status := s.Run(false)
	if status != isa.StatHLT {
		t.Fatalf("status %s, want HLT", isa.StatusName(status))
	}
	if got := s.Register("rax"); got != 5 {
		t.Errorf("rax = %d, want 5", got)
	}
	if got := s.Register("rcx"); got != 0 {
		t.Errorf("rcx = %d, want 0", got)
	}
}

// TestArraySum walks five quads placed at 0x100 via .pos/.quad.
func TestArraySum(t *testing.T) {
	s := load(t, `
    irmovq $array, %rdx
    irmovq $5, %rcx
    irmovq $0, %rax
    irmovq $1, %rsi
    irmovq $8, %rdi
loop:
    andq %rcx, %rcx
    je done
    mrmovq (%rdx), %rbx
    addq %rbx, %rax
    addq %rdi, %rdx
    subq %rsi, %rcx
    jmp loop
done:
    halt

.pos 0x100
array:
    .quad 1
    .quad 2
    .quad 3
    .quad 4
    .quad 5
`)
	status := s.Run(false)
	if status != isa.StatHLT {
		t.Fatalf("status %s, want HLT", isa.StatusName(status))
	}
	if got := s.Register("rax"); got != 15 {
		t.Errorf("rax = %d, want 15", got)
	}

	// The array itself is loaded where .pos put it.
	v, err := s.ReadMemory(0x100, 8)
	if err != nil || v != 1 {
		t.Errorf("mem[0x100] = %d (%v), want 1", v, err)
	}
}

func TestCallRet(t *testing.T) {
	s := load(t, `
    call f
    halt
f:  irmovq $42, %rax
    ret
`)
	sp0 := s.Register("rsp")
	status := s.Run(false)
	if status != isa.StatHLT {
		t.Fatalf("status %s, want HLT", isa.StatusName(status))
	}
	if got := s.Register("rax"); got != 42 {
		t.Errorf("rax = %d, want 42", got)
	}
	if got := s.Register("rsp"); got != sp0 {
		t.Errorf("rsp = %d, want %d", got, sp0)
	}
}

// TestAddressFault: a memory access through an out-of-range stack pointer
// faults without retiring.
func TestAddressFault(t *testing.T) {
	s := load(t, "mrmovq 0(%rsp), %rax\nhalt\n")
	// Default rsp = memory size, so 0(%rsp) is already past the end.
	status := s.Run(false)
	if status != isa.StatADR {
		t.Fatalf("status %s, want ADR", isa.StatusName(status))
	}
	if s.CPU.InstructionCount != 0 {
		t.Errorf("faulting step retired: count=%d, want 0", s.CPU.InstructionCount)
	}
}

// TestRunDeterminism: independent simulators produce identical final state.
func TestRunDeterminism(t *testing.T) {
	source := `
    irmovq $3, %rax
    irmovq $4, %rbx
    addq %rax, %rbx
    pushq %rbx
    popq %rcx
    halt
`
	a := load(t, source)
	b := load(t, source)
	a.Run(false)
	b.Run(false)

	for _, reg := range []string{"rax", "rbx", "rcx", "rsp"} {
		if a.Register(reg) != b.Register(reg) {
			t.Errorf("%s differs: %d vs %d", reg, a.Register(reg), b.Register(reg))
		}
	}
	if a.CPU.Status != b.CPU.Status || a.CPU.InstructionCount != b.CPU.InstructionCount {
		t.Error("status or counters differ")
	}
}

func TestStackFlag(t *testing.T) {
	s := New(0)
	s.TraceWriter = io.Discard
	if err := s.LoadAssembly("pushq %rax\nhalt\n", 256); err != nil {
		t.Fatal(err)
	}
	s.Run(false)
	if got := s.Register("rsp"); got != 248 {
		t.Errorf("rsp = %d, want 248", got)
	}
}

func TestRunCap(t *testing.T) {
	s := load(t, "loop: jmp loop\n")
	s.MaxInstructions = 25
	var out bytes.Buffer
	s.TraceWriter = &out

	status := s.Run(false)
	if status != isa.StatAOK {
		t.Errorf("status %s, want AOK at cap", isa.StatusName(status))
	}
	if s.CPU.InstructionCount != 25 {
		t.Errorf("count %d, want 25", s.CPU.InstructionCount)
	}
	if !strings.Contains(out.String(), "maximum instructions") {
		t.Error("missing cap warning")
	}
}

func TestTraceOutput(t *testing.T) {
	s := load(t, "nop\nhalt\n")
	var out bytes.Buffer
	s.TraceWriter = &out
	s.Run(true)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d trace lines, want 2:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "AOK") || !strings.Contains(lines[0], "PC=0x0001") {
		t.Errorf("unexpected first trace line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "HLT") {
		t.Errorf("unexpected final trace line: %q", lines[1])
	}
}

func TestSnapshotRecording(t *testing.T) {
	s := New(0)
	s.TraceWriter = io.Discard
	s.RecordSnapshots(true)
	if err := s.LoadAssembly("irmovq $100, %rax\nhalt\n", -1); err != nil {
		t.Fatal(err)
	}
	s.Run(false)

	snaps := s.Snapshots()
	// Initial state, the retired irmovq, and the halting step.
	if len(snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(snaps))
	}
	if snaps[0].PC != 0 || snaps[0].Stat != int(isa.StatAOK) || snaps[0].CC.ZF != 1 {
		t.Errorf("unexpected initial snapshot: %+v", snaps[0])
	}
	if snaps[1].Reg["rax"] != 100 || snaps[1].PC != 10 {
		t.Errorf("unexpected step snapshot: %+v", snaps[1])
	}
	if snaps[2].Stat != int(isa.StatHLT) {
		t.Errorf("final snapshot status %d, want HLT", snaps[2].Stat)
	}
	if snaps[2].Cache == nil {
		t.Error("cache record missing")
	}
	// The program image itself shows up as non-zero quads at address 0.
	if _, ok := snaps[0].Mem["0"]; !ok {
		t.Error("sparse MEM should include the program bytes")
	}
}

func TestAccessorPanics(t *testing.T) {
	s := New(0)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("Register with unknown name should panic")
			}
		}()
		s.Register("rzz")
	}()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("ReadMemory with size 4 should panic")
			}
		}()
		s.ReadMemory(0, 4)
	}()
}

func TestLoadAssemblyErrorKeepsMemoryClean(t *testing.T) {
	s := New(0)
	if err := s.LoadAssembly("nop\nbogus\n", -1); err == nil {
		t.Fatal("expected assembly error")
	}
	// Nothing was loaded.
	v, _ := s.ReadMemory(0, 1)
	if v != 0 {
		t.Errorf("memory modified after failed assembly: %d", v)
	}
}
