package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var suggestK int

var suggestCmd = &cobra.Command{
	Use:   "suggest <token>",
	Short: "Hybrid neighbor suggestions for a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		id, err := db.EnsureToken(ctx, args[0])
		if err != nil {
			return err
		}
		out, err := db.Suggest(ctx, id, suggestK)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TOKEN\tSCORE")
		for _, c := range out {
			text, err := db.Token(ctx, c.ID)
			if err != nil {
				text = fmt.Sprintf("#%d", c.ID)
			}
			fmt.Fprintf(w, "%s\t%.4f\n", text, c.Score)
		}
		return w.Flush()
	},
}

func init() {
	suggestCmd.Flags().IntVarP(&suggestK, "top", "k", 10, "number of suggestions")
	rootCmd.AddCommand(suggestCmd)
}
