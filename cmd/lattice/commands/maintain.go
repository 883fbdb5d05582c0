package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Re-encode all edge blocks with the configured codec",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Compact(cmd.Context())
	},
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Remove empty and unreadable edge blocks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.GC(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d blocks\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compactCmd, gcCmd)
}
