package main

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parcp/parcp/internal/verify"
)

var verifyWorkers int

var verifyCmd = &cobra.Command{
	Use:   "verify <source> <destination>",
	Short: "Re-hash a completed copy and report any mismatches",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		workers := verifyWorkers
		if workers <= 0 {
			workers = min(runtime.NumCPU()*2, 32)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		result := verify.Run(ctx, verify.Config{
			SrcRoot: args[0],
			DstRoot: args[1],
			Workers: workers,
		})

		fmt.Printf("verified %d file(s), %d mismatch(es)\n", result.Verified, len(result.Mismatched))
		for _, m := range result.Mismatched {
			fmt.Printf("MISMATCH %s  src=%s dst=%s\n", m.RelPath, m.SrcHash, m.DstHash)
		}
		if len(result.Mismatched) > 0 {
			return &exitError{code: 1}
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().IntVarP(&verifyWorkers, "workers", "w", 0, "number of hashing workers")
}
