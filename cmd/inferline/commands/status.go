package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show aliases and recent build workspaces",
		Long: `Show the current alias bindings (latest, running, aborted,
compiled, compiled-backup) and the most recent build workspaces with
their status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			aliases, err := rt.store.Aliases(ctx)
			if err != nil {
				return err
			}
			records, err := rt.store.ListWorkspaces(ctx, limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				out := struct {
					Aliases    map[string]string `json:"aliases"`
					Workspaces interface{}       `json:"workspaces"`
				}{Aliases: aliases, Workspaces: records}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Println("Aliases:")
			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			for name, key := range aliases {
				fmt.Fprintf(w, "  %s\t%s\n", name, key)
			}
			w.Flush()

			fmt.Println("\nWorkspaces:")
			w = tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "  KEY\tSTATUS\tCREATED\tARTIFACT")
			for _, rec := range records {
				fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
					rec.Key, rec.Status, rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.CompiledArtifact)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of workspaces to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	return cmd
}
