package main

import (
	"fmt"
	"math/rand"

	"github.com/garethgeorge/chunkalloc/internal/trace"
	"github.com/spf13/cobra"
)

type genFlags struct {
	ops       int
	seed      int64
	maxSize   int
	maxChunks int
}

func init() {
	var flags genFlags
	cmd := &cobra.Command{
		Use:   "gen <output>",
		Short: "Generate a random trace",
		Long: `The gen command writes a random workload. Outputs ending in .zst are
zstd compressed.

Example:
  chunksim gen --ops 10000 --seed 7 workload.trace.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := trace.Generate(rand.New(rand.NewSource(flags.seed)), flags.ops, flags.maxSize, flags.maxChunks)
			if err := trace.WriteFile(args[0], ops); err != nil {
				return fmt.Errorf("write %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d ops to %s\n", len(ops), args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&flags.ops, "ops", 1000, "Number of operations")
	cmd.Flags().Int64Var(&flags.seed, "seed", 1, "Random seed")
	cmd.Flags().IntVar(&flags.maxSize, "max-size", 1024, "Largest allocation in bytes")
	cmd.Flags().IntVar(&flags.maxChunks, "max-chunks", 64, "Largest chunk count used by resize ops")
	rootCmd.AddCommand(cmd)
}
