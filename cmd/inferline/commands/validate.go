package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferline/inferline/pkg/config"
	"github.com/inferline/inferline/pkg/pipeline"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <plan>",
		Short: "Compile a plan in memory and gate-check it",
		Long: `Validate a plan without touching the workspace store.

The plan is transformed through the full stage pipeline in memory and
the compiled document is checked by the policy and graph gates. No
workspace is allocated and no aliases change.`,
		Example: `  # Validate a plan
  inferline validate plan.json

  # Validate with project policies
  inferline validate -c inferline.cue plan.cue`,
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

			gates, err := rt.newGates()
			if err != nil {
				return err
			}

			blocking := 0
			for _, g := range gates {
				res, err := g.Check(ctx, result.Document)
				if err != nil {
					return fmt.Errorf("gate %s: %w", g.Name(), err)
				}
				for _, v := range res.Violations {
					fmt.Printf("[%s] %s/%s %s: %s\n", v.Severity, v.Gate, v.Policy, v.Entity, v.Message)
					if v.Severity.Blocking() {
						blocking++
					}
				}
			}

			if blocking > 0 {
				return fmt.Errorf("plan rejected: %d blocking violation(s)", blocking)
			}
			fmt.Println("plan is valid")
			return nil
		},
	}

	return cmd
}
