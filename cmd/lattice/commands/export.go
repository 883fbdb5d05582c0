package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hlsf/lattice"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the full JSON export mirror",
	Long: `Write the full JSON export mirror: one file per bigram under
26 letter folders (A/AA.json .. Z/ZZ.json), schema_version 1.

The output directory comes from --out or the "mirror" config key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := exportOut
		if out == "" {
			out = cfg.Mirror
		}
		if out == "" {
			return fmt.Errorf("no output directory: set --out or the mirror config key")
		}

		db, err := lattice.Open(cfg.Path, lattice.WithMirror(out, 0))
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.ExportMirrorAll(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("mirror written to %s\n", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output directory")
	rootCmd.AddCommand(exportCmd)
}
