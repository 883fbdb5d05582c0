package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hlsf/lattice/core"
	"github.com/hlsf/lattice/edgeblock"
	"github.com/hlsf/lattice/shardstore"
)

// importLine is one JSONL record: a token and its outgoing edges. Edges
// name neighbors by text; ids are assigned during import.
type importLine struct {
	Token string `json:"token"`
	Edges []struct {
		Neighbor string `json:"neighbor"`
		Type     uint16 `json:"type"`
		Weight   uint32 `json:"weight"`
		LastSeen uint32 `json:"last_seen"`
	} `json:"edges"`
}

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Bulk-import adjacency from a JSONL file",
	Long: `Bulk-import adjacency from a JSONL file.

Each line is one token with its outgoing edges:

  {"token":"water","edges":[{"neighbor":"river","type":0,"weight":700,"last_seen":1712000000}]}

Malformed lines are skipped with a warning, not fatal.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ctx := cmd.Context()
		skipped := 0
		items := func(yield func(shardstore.ImportItem) bool) {
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
			for scanner.Scan() {
				var line importLine
				if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
					skipped++
					continue
				}
				rows := make([]edgeblock.Row, 0, len(line.Edges))
				for _, e := range line.Edges {
					id, err := db.EnsureToken(ctx, e.Neighbor)
					if err != nil {
						continue
					}
					rows = append(rows, edgeblock.Row{
						NeighborID: id,
						Type:       core.RelationType(e.Type),
						Weight:     e.Weight,
						LastSeen:   e.LastSeen,
					})
				}
				if !yield(shardstore.ImportItem{Token: line.Token, Edges: rows}) {
					return
				}
			}
		}

		n, err := db.BulkImport(ctx, items)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d tokens (%d lines skipped)\n", n, skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
