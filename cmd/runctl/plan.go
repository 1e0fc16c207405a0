package main

import (
	"fmt"
	"text/tabwriter"

	"backend-runtracker/internal/workout"

	"github.com/spf13/cobra"
)

func newPlanCommand(rootOpts *rootOptions) *cobra.Command {
	var defaultSeconds int

	cmd := &cobra.Command{
		Use:   "plan <file>",
		Short: "Show the step durations a workout plan resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := workout.LoadPlanFile(args[0])
			if err != nil {
				return err
			}
			logger := rootOpts.logger(cmd.ErrOrStderr())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "#\tLABEL\tDURATION\tSECONDS\n")
			total := 0
			for _, step := range plan.Steps {
				seconds, err := step.TargetDuration()
				if err != nil {
					logger.Warn("step falls back to default duration", "step", step.Order, "error", err)
					seconds = defaultSeconds
				}
				total += seconds
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", step.Order, step.Label, step.Duration, seconds)
			}
			fmt.Fprintf(w, "\t%s\t\t%d\n", plan.Name, total)
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&defaultSeconds, "default-seconds", workout.DefaultStepDuration, "duration used for unparseable steps")
	return cmd
}
