package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parcp/parcp/internal/engine"
)

var checksumCmd = &cobra.Command{
	Use:   "checksum <file>...",
	Short: "Print the BLAKE3 digest of one or more files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var failed bool
		for _, path := range args {
			sum, err := engine.HashFile(path)
			if err != nil {
				fmt.Printf("%s: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("%s  %s\n", sum, path)
		}
		if failed {
			return &exitError{code: 1}
		}
		return nil
	},
}
