package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maplan-dev/maplan/internal/grounding"
)

var validateCmd = &cobra.Command{
	Use:   "validate <problem.yaml>",
	Short: "Check a problem file without solving it",
	Long: `Validate loads a problem file and projects every agent's task,
reporting the first inconsistency it finds: undeclared variables, values
outside a variable's domain, actions owned by unknown agents.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	problem, err := grounding.LoadProblemFile(args[0])
	if err != nil {
		return err
	}
	if _, err := problem.ProjectAll(); err != nil {
		return err
	}

	actions := 0
	for _, owned := range problem.ActionsByOwner() {
		actions += len(owned)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d agents, %d variables, %d actions, %d goals)\n",
		args[0], len(problem.Agents), len(problem.Variables), actions, len(problem.Goals))
	return nil
}
