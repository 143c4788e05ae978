package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/cloudingyu/y86sim/pkg/asm"
	"github.com/cloudingyu/y86sim/pkg/isa"
	"github.com/cloudingyu/y86sim/pkg/mem"
	"github.com/cloudingyu/y86sim/pkg/sim"
	"github.com/cloudingyu/y86sim/pkg/trace"
	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
)

func main() {
	// Flags fall back to Y86SIM_* environment variables, then defaults.
	defaultMemSize := env.Int("Y86SIM_MEM_SIZE", mem.DefaultSize)
	defaultMaxSteps := env.Int("Y86SIM_MAX_STEPS", sim.DefaultMaxInstructions)

	var traceSteps bool
	var memSize int
	var stackStr string
	var dumpMemory bool
	var snapshots bool
	var maxSteps int

	rootCmd := &cobra.Command{
		Use:   "y86sim FILE",
		Short: "Y86-64 assembler and processor simulator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stackAddr := int64(-1)
			if stackStr != "" {
				v, err := strconv.ParseInt(stackStr, 0, 64)
				if err != nil {
					return fmt.Errorf("invalid --stack value %q", stackStr)
				}
				stackAddr = v
			}

			s := sim.New(memSize)
			s.MaxInstructions = int64(maxSteps)
			if snapshots {
				s.RecordSnapshots(true)
			}

			if err := s.LoadAssemblyFile(args[0], stackAddr); err != nil {
				return err
			}

			if snapshots {
				// Snapshot mode skips the banner and final report; a run-cap
				// warning may still precede the JSON array, so consumers
				// locate it by the first '[' and last ']'.
				s.Run(false)
				return trace.WriteJSON(os.Stdout, s.Snapshots())
			}

			fmt.Printf("Loaded: %s\n", args[0])
			fmt.Printf("Memory size: %d bytes\n", memSize)
			if stackAddr >= 0 {
				fmt.Printf("Stack pointer: 0x%x\n", stackAddr)
			}
			fmt.Println()

			status := s.Run(traceSteps)

			fmt.Println()
			fmt.Println("Execution completed")
			fmt.Println(s.DumpState())

			if dumpMemory {
				fmt.Println("\nMemory dump:")
				fmt.Println(s.DumpMemory(0, 256))
			}

			if status != isa.StatAOK && status != isa.StatHLT {
				return fmt.Errorf("execution faulted: %s", isa.StatusName(status))
			}
			return nil
		},
	}
	rootCmd.Flags().BoolVarP(&traceSteps, "trace", "t", false, "Print one line per executed step")
	rootCmd.Flags().IntVarP(&memSize, "mem-size", "m", defaultMemSize, "Memory size in bytes")
	rootCmd.Flags().StringVarP(&stackStr, "stack", "s", "", "Initial stack pointer (default: end of memory)")
	rootCmd.Flags().BoolVarP(&dumpMemory, "dump-memory", "d", false, "Dump the first 256 bytes of memory after execution")
	rootCmd.Flags().BoolVar(&snapshots, "snapshots", false, "Emit per-step state snapshots as a JSON array")
	rootCmd.Flags().IntVar(&maxSteps, "max-steps", defaultMaxSteps, "Instruction cap for a run")

	// asm command: assemble without executing
	var asmOutput string

	asmCmd := &cobra.Command{
		Use:   "asm FILE",
		Short: "Assemble a source file and print or write the object image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assembler := asm.New()
			image, err := assembler.AssembleFile(args[0])
			if err != nil {
				return err
			}

			if asmOutput != "" {
				if err := os.WriteFile(asmOutput, image, 0o644); err != nil {
					return err
				}
				fmt.Printf("Written %d bytes to %s\n", len(image), asmOutput)
				return nil
			}

			memory := mem.New(len(image) + 16)
			if err := memory.Load(image, 0); err != nil {
				return err
			}
			fmt.Println(memory.Dump(0, len(image)))
			return nil
		},
	}
	asmCmd.Flags().StringVarP(&asmOutput, "output", "o", "", "Write raw object bytes to a file instead of printing")

	// batch command: run many programs on a worker pool
	var batchWorkers int
	var batchVerbose bool
	var batchMemSize int
	var batchMaxSteps int

	batchCmd := &cobra.Command{
		Use:   "batch FILE...",
		Short: "Assemble and run multiple programs in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Running %d programs\n", len(args))

			outcomes := sim.RunBatch(sim.BatchConfig{
				Files:           args,
				MemSize:         batchMemSize,
				MaxInstructions: int64(batchMaxSteps),
				NumWorkers:      batchWorkers,
				Verbose:         batchVerbose,
				Out:             os.Stdout,
			})

			failed := 0
			for _, o := range outcomes {
				if o.OK() {
					continue
				}
				failed++
				if o.Err != nil {
					fmt.Printf("  FAIL %s: %v\n", o.File, o.Err)
				} else {
					fmt.Printf("  FAIL %s: %s after %d instructions\n",
						o.File, isa.StatusName(o.Status), o.Instructions)
				}
			}

			fmt.Printf("\n%d/%d programs completed normally\n", len(outcomes)-failed, len(outcomes))
			if failed > 0 {
				return fmt.Errorf("%d programs failed", failed)
			}
			return nil
		},
	}
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Number of workers (0 = NumCPU)")
	batchCmd.Flags().BoolVarP(&batchVerbose, "verbose", "v", false, "Print one line per completed program")
	batchCmd.Flags().IntVar(&batchMemSize, "mem-size", defaultMemSize, "Memory size in bytes")
	batchCmd.Flags().IntVar(&batchMaxSteps, "max-steps", defaultMaxSteps, "Instruction cap per program")

	rootCmd.AddCommand(asmCmd, batchCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
