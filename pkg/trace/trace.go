// Package trace records per-step machine-state snapshots and serializes
// them as the JSON array external visualizers consume.
package trace

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/cloudingyu/y86sim/pkg/cpu"
	"github.com/cloudingyu/y86sim/pkg/isa"
	"github.com/cloudingyu/y86sim/pkg/mem"
)

// ConditionCodes carries the flags as 0/1 integers.
type ConditionCodes struct {
	ZF int `json:"ZF"`
	SF int `json:"SF"`
	OF int `json:"OF"`
}

// CacheInfo carries the opaque cache counters.
type CacheInfo struct {
	Hits   int64   `json:"hits"`
	Misses int64   `json:"misses"`
	Rate   float64 `json:"rate"`
}

// Snapshot is one machine-state record: the initial state or the state after
// a step, including a halting or faulting one. MEM is sparse; only non-zero quads appear, keyed by
// decimal address.
type Snapshot struct {
	PC    int64            `json:"PC"`
	CC    ConditionCodes   `json:"CC"`
	Stat  int              `json:"STAT"`
	Reg   map[string]int64 `json:"REG"`
	Mem   map[string]int64 `json:"MEM"`
	Cache *CacheInfo       `json:"CACHE,omitempty"`
}

// Capture builds a snapshot from the current CPU and memory state.
func Capture(c *cpu.CPU, m *mem.Memory, withCache bool) Snapshot {
	reg := make(map[string]int64, isa.NumRegisters)
	for i := uint8(0); i < isa.NumRegisters; i++ {
		name := strings.TrimPrefix(isa.RegisterNames[i], "%")
		reg[name] = c.Register(i)
	}

	memVals := make(map[string]int64)
	for addr, v := range m.NonZeroQuads() {
		memVals[strconv.FormatInt(addr, 10)] = v
	}

	snap := Snapshot{
		PC:   c.PC,
		CC:   ConditionCodes{ZF: b2i(c.ZF), SF: b2i(c.SF), OF: b2i(c.OF)},
		Stat: int(c.Status),
		Reg:  reg,
		Mem:  memVals,
	}
	if withCache {
		stats := m.Cache()
		snap.Cache = &CacheInfo{
			Hits:   stats.Hits(),
			Misses: stats.Misses(),
			Rate:   stats.Rate(),
		}
	}
	return snap
}

// WriteJSON emits snapshots as a JSON array.
func WriteJSON(w io.Writer, snaps []Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snaps)
}

// ReadJSON extracts the snapshot array from mixed output: consumers locate
// it by the first '[' and the last ']'.
func ReadJSON(r io.Reader) ([]Snapshot, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	start := strings.IndexByte(string(raw), '[')
	end := strings.LastIndexByte(string(raw), ']')
	if start < 0 || end < start {
		return nil, errors.New("no snapshot array found")
	}
	var snaps []Snapshot
	if err := json.Unmarshal(raw[start:end+1], &snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}
