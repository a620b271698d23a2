package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferline/inferline/pkg/config"
	"github.com/inferline/inferline/pkg/pipeline"
	"github.com/inferline/inferline/pkg/plan"
)

func newGraphCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "graph <plan>",
		Short: "Render the compiled dependency graph as DOT",
		Long: `Compile a plan in memory and emit its dependency graph in
Graphviz DOT format, grouped by execution level.`,
		Example: `  # Print the graph to stdout
  inferline graph plan.json

  # Write it to a file and render it
  inferline graph plan.json -o plan.dot && dot -Tsvg plan.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			doc, err := config.LoadDocument(args[0])
			if err != nil {
				return err
			}

			driver := pipeline.NewDriver(pipeline.DefaultRegistry(), rt.logger, rt.metrics, rt.tracer)
			result, err := driver.Run(ctx, doc, pipeline.NullSink{})
			if err != nil {
				return err
			}

			graph, err := plan.NewGraphBuilder().Build(result.Document)
			if err != nil {
				return err
			}

			dot := graph.ToDOT()
			if output == "" {
				fmt.Print(dot)
				return nil
			}
			if err := os.WriteFile(output, []byte(dot), 0o644); err != nil {
				return fmt.Errorf("write graph: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write DOT output to a file instead of stdout")

	return cmd
}
