package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferline/inferline/pkg/config"
)

func newCompileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <plan>",
		Short: "Compile a plan into a promoted build workspace",
		Long: `Compile a plan document into a build workspace.

The run allocates a timestamped workspace, transforms the plan through
the normalize, qualify, and merge stages, validates the compiled
document with the policy and graph gates, fans out the code
generators, and promotes the workspace once every fragment is present.
On failure the workspace is marked aborted and the previously promoted
build keeps its aliases.`,
		Example: `  # Compile a JSON plan
  inferline compile plan.json

  # Compile a CUE plan quietly; errors are re-emitted from the log
  inferline compile --quiet plan.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if err := rt.metrics.Serve(); err != nil {
				return err
			}

			doc, err := config.LoadDocument(args[0])
			if err != nil {
				return err
			}

			builder, err := rt.newBuilder()
			if err != nil {
				return err
			}

			outcome, err := builder.Run(ctx, doc)
			if err != nil {
				return err
			}

			fmt.Printf("promoted workspace %s\n", outcome.WorkspaceKey)
			fmt.Printf("compiled artifact: %s\n", outcome.CompiledArtifact)
			for _, fragment := range outcome.Fragments {
				fmt.Printf("fragment: %s\n", fragment)
			}
			for _, v := range outcome.Violations {
				fmt.Printf("warning [%s/%s] %s: %s\n", v.Gate, v.Policy, v.Entity, v.Message)
			}
			return nil
		},
	}

	return cmd
}
