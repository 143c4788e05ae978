package sim

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cloudingyu/y86sim/pkg/isa"
)

// Outcome is the result of running one source file in a batch.
type Outcome struct {
	File         string
	Status       uint8
	Instructions int64
	Err          error
}

// OK reports whether the run finished normally (AOK or HLT, no error).
func (o Outcome) OK() bool {
	return o.Err == nil && (o.Status == isa.StatAOK || o.Status == isa.StatHLT)
}

// BatchConfig configures a parallel batch run.
type BatchConfig struct {
	Files           []string
	MemSize         int
	MaxInstructions int64
	NumWorkers      int // 0 = NumCPU
	Verbose         bool
	Out             io.Writer // progress output; nil silences it
}

// outcomeTable collects outcomes from concurrent workers.
type outcomeTable struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (t *outcomeTable) add(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes = append(t.outcomes, o)
}

// results returns all outcomes sorted by file name.
func (t *outcomeTable) results() []Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Outcome, len(t.outcomes))
	copy(out, t.outcomes)
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out
}

// RunBatch assembles and runs each file on a pool of workers. Every task
// gets its own Simulator, so workers share no machine state.
func RunBatch(cfg BatchConfig) []Outcome {
	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	maxInstr := cfg.MaxInstructions
	if maxInstr <= 0 {
		maxInstr = DefaultMaxInstructions
	}

	table := &outcomeTable{}
	var completed atomic.Int64

	ch := make(chan string, len(cfg.Files))
	for _, f := range cfg.Files {
		ch <- f
	}
	close(ch)

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range ch {
				o := runOne(file, cfg.MemSize, maxInstr)
				table.add(o)
				done := completed.Add(1)
				if cfg.Verbose && cfg.Out != nil {
					verdict := "ok"
					if !o.OK() {
						verdict = "FAIL"
					}
					fmt.Fprintf(cfg.Out, "  [%d/%d] %s: %s (%s, %d instructions)\n",
						done, len(cfg.Files), file, verdict, isa.StatusName(o.Status), o.Instructions)
				}
			}
		}()
	}
	wg.Wait()

	return table.results()
}

func runOne(file string, memSize int, maxInstr int64) Outcome {
	s := New(memSize)
	s.MaxInstructions = maxInstr
	s.TraceWriter = io.Discard

	if err := s.LoadAssemblyFile(file, -1); err != nil {
		return Outcome{File: file, Err: err}
	}
	status := s.Run(false)
	return Outcome{
		File:         file,
		Status:       status,
		Instructions: s.CPU.InstructionCount,
	}
}
