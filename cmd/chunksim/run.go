package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/garethgeorge/chunkalloc/internal/trace"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type runFlags struct {
	arenaSize      int
	chunkSize      int
	maxChunks      int
	compactOnAlloc bool
	parallel       int
}

func init() {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run <trace>...",
		Short: "Replay one or more traces",
		Long: `The run command replays every trace on its own arena, concurrently, and
prints a summary per trace.

Example:
  chunksim run workload.trace
  chunksim run --chunk-size 512 --max-chunks 128 a.trace.zst b.trace.zst`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraces(cmd, args, flags)
		},
	}
	cmd.Flags().IntVar(&flags.arenaSize, "arena-size", 1<<20, "Size of each arena in bytes")
	cmd.Flags().IntVar(&flags.chunkSize, "chunk-size", 4096, "Nominal chunk size in bytes")
	cmd.Flags().IntVar(&flags.maxChunks, "max-chunks", 64, "Initial number of chunk slots")
	cmd.Flags().BoolVar(&flags.compactOnAlloc, "compact-on-alloc", false, "Compact the arena before every allocation")
	cmd.Flags().IntVarP(&flags.parallel, "parallel", "p", 4, "Maximum traces replayed at once")
	rootCmd.AddCommand(cmd)
}

func runTraces(cmd *cobra.Command, paths []string, flags runFlags) error {
	cfg := trace.Config{
		ArenaSize:      flags.arenaSize,
		ChunkSize:      flags.chunkSize,
		MaxChunks:      flags.maxChunks,
		CompactOnAlloc: flags.compactOnAlloc,
		Logger:         newLogger(),
	}

	results := make([]trace.Result, len(paths))
	eg, ctx := errgroup.WithContext(cmd.Context())
	eg.SetLimit(max(flags.parallel, 1))
	for i, path := range paths {
		eg.Go(func() error {
			ops, err := trace.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			res, err := trace.Replay(ctx, ops, cfg)
			if err != nil {
				return fmt.Errorf("replay %s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, path := range paths {
		printResult(out, filepath.Base(path), results[i])
	}
	return nil
}

func printResult(w io.Writer, name string, res trace.Result) {
	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  ops:        %d\n", res.Ops)
	fmt.Fprintf(w, "  allocs:     %d (%d refused)\n", res.Allocs, res.Failures)
	fmt.Fprintf(w, "  checks:     %d (%d skipped)\n", res.Checks, res.SkippedChecks)
	fmt.Fprintf(w, "  virtual:    %d bytes in %d chunks (capacity %d)\n", res.Len, res.Chunks, res.Header.Capacity)
	fmt.Fprintf(w, "  arena:      %d/%d bytes used, %d compactions, %d bytes moved\n",
		res.Arena.Used, res.Arena.Capacity, res.Arena.Compactions, res.Arena.MovedBytes)
	fmt.Fprintf(w, "  digest:     %016x\n", res.Digest)
}
