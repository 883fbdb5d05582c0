// Package main provides the lattice CLI tool.
//
// Usage:
//
//	lattice [flags] <command> [args]
//
// Commands:
//
//	import   - Bulk-import adjacency from a JSONL file
//	stats    - Print store counters
//	suggest  - Hybrid neighbor suggestions for a token
//	compact  - Re-encode all edge blocks with the configured codec
//	gc       - Remove empty and unreadable edge blocks
//	export   - Write the full JSON export mirror
//
// Configuration:
//
//	Database location and tuning come from a YAML config file
//	(--config, default ./lattice.yaml if present) or flags.
package main

import (
	"fmt"
	"os"

	"github.com/hlsf/lattice/cmd/lattice/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
