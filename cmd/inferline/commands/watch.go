package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/inferline/inferline/pkg/build"
	"github.com/inferline/inferline/pkg/config"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <plan>",
		Short: "Recompile the plan whenever it changes",
		Long: `Watch a plan source and run a full compile whenever it is
written. Each change produces a fresh workspace; a failed compile
leaves the previously promoted build untouched, so the watcher keeps
running across broken intermediate states.`,
		Example: `  # Recompile plan.cue on every save
  inferline watch plan.cue`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			planPath := args[0]

			rt, err := newRuntime(ctx, true)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			if err := rt.metrics.Serve(); err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Close()

			// Editors often replace files instead of writing in place,
			// so watch the parent directory and filter by name.
			if err := watcher.Add(filepath.Dir(planPath)); err != nil {
				return fmt.Errorf("watch plan source: %w", err)
			}

			compile := func() {
				doc, err := config.LoadDocument(planPath)
				if err != nil {
					rt.logger.WithError(err).Error("plan failed to load")
					return
				}
				builder, err := rt.newBuilder()
				if err != nil {
					rt.logger.WithError(err).Error("builder setup failed")
					return
				}
				outcome, err := builder.Run(ctx, doc)
				if err != nil {
					rt.logger.WithError(err).
						WithField("class", string(build.ClassOf(err))).
						Error("compile failed")
					return
				}
				fmt.Printf("promoted workspace %s\n", outcome.WorkspaceKey)
			}

			rt.logger.WithField("plan", planPath).Info("watching plan source")
			compile()

			var timer *time.Timer
			base := filepath.Base(planPath)
			for {
				select {
				case <-ctx.Done():
					if timer != nil {
						timer.Stop()
					}
					if ctx.Err() == context.Canceled {
						return nil
					}
					return ctx.Err()

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
						continue
					}
					if filepath.Base(event.Name) != base && !strings.HasSuffix(event.Name, ".cue") {
						continue
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, compile)

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					rt.logger.WithError(err).Warn("watch error")
				}
			}
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "delay before recompiling after a change")

	return cmd
}
