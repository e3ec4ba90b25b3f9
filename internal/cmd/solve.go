package cmd

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maplan-dev/maplan/internal/comms"
	"github.com/maplan-dev/maplan/internal/config"
	"github.com/maplan-dev/maplan/internal/dtg"
	"github.com/maplan-dev/maplan/internal/errors"
	"github.com/maplan-dev/maplan/internal/grounding"
	"github.com/maplan-dev/maplan/internal/heuristic"
	"github.com/maplan-dev/maplan/internal/landmarks"
	"github.com/maplan-dev/maplan/internal/logging"
	"github.com/maplan-dev/maplan/internal/pop"
	"github.com/maplan-dev/maplan/internal/rpg"
	"github.com/maplan-dev/maplan/internal/search"
)

var solveCmd = &cobra.Command{
	Use:   "solve <problem.yaml>",
	Short: "Solve a multi-agent planning problem",
	Long: `Solve loads a problem file, projects one task per agent, and runs
every agent in-process over the configured transport. The first agent
drives the plan search; the others answer transition-cost requests.`,
	Args: cobra.ExactArgs(1),
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().Int("workers", 0, "evaluation pool size")
	solveCmd.Flags().String("heuristic", "", "plan evaluator: dtg, landmarks or incremental_dtg")
	solveCmd.Flags().Int("max-plans", 0, "bound on the number of plans, 0 for unbounded")
	solveCmd.Flags().String("run-dir", "", "directory for the run log")
	_ = viper.BindPFlag("search.workers", solveCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("heuristic.name", solveCmd.Flags().Lookup("heuristic"))
	_ = viper.BindPFlag("search.max_plans", solveCmd.Flags().Lookup("max-plans"))
	_ = viper.BindPFlag("logging.run_dir", solveCmd.Flags().Lookup("run-dir"))

	rootCmd.AddCommand(solveCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Logging.RunDir, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer logger.Close()

	problem, err := grounding.LoadProblemFile(args[0])
	if err != nil {
		return err
	}
	tasks, err := problem.ProjectAll()
	if err != nil {
		return err
	}

	plan, err := solveProblem(cmd.Context(), cfg, logger, problem.Agents, tasks)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Plan found (%d steps):\n", plan.Length())
	for i, step := range plan.Steps() {
		fmt.Fprintf(out, "  %d. %s [%s]\n", i+1, step.Action.Name, step.Action.Agent)
	}
	return nil
}

// solveProblem runs one goroutine per agent over a shared transport. The
// first agent in ring order searches; the others serve evaluation stages
// until the driver announces the result.
func solveProblem(ctx context.Context, cfg *config.Config, logger *logging.Logger, agents []string, tasks map[string]*grounding.Task) (*pop.Plan, error) {
	var tr comms.Transport
	switch cfg.Comms.Transport {
	case config.TransportFile:
		tr = comms.NewFileTransport(cfg.Comms.Dir)
	default:
		tr = comms.NewChannelTransport(agents)
	}
	defer tr.Close()

	workers := cfg.Search.Workers
	if len(agents) > 1 {
		// The ring protocol is single-threaded per agent.
		workers = 1
	}

	var wg conc.WaitGroup
	plans := make(chan *pop.Plan, 1)
	errs := make(chan error, len(agents))
	for i, agent := range agents {
		driver := i == 0
		task := tasks[agent]
		reg := comms.NewRegistry(agents, agent, tr)
		log := logger.WithAgent(agent)
		wg.Go(func() {
			plan, err := runAgent(ctx, cfg, log, reg, task, driver, workers)
			if err != nil {
				log.Error("agent failed",
					"error", err,
					"severity", errors.SeverityOf(err).String(),
					"fatal", errors.IsFatal(err))
				errs <- err
				return
			}
			if plan != nil {
				plans <- plan
			}
		})
	}
	wg.Wait()
	close(errs)
	close(plans)

	for err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return <-plans, nil
}

// runAgent takes one agent through the full pipeline: planning-graph
// synchronization, transition-graph distribution, landmark extraction,
// then the search (driver) or the evaluation serve loop (everyone else).
func runAgent(ctx context.Context, cfg *config.Config, logger *logging.Logger, reg *comms.Registry, task *grounding.Task, driver bool, workers int) (*pop.Plan, error) {
	r := rpg.New(task, rpg.WithLogger(logger))
	if err := r.Synchronize(ctx, reg); err != nil {
		return nil, err
	}

	set := dtg.NewSet(task)
	if err := set.Distribute(ctx, reg); err != nil {
		return nil, err
	}

	graph, err := landmarks.ExtractMA(ctx, reg, task, r, landmarks.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	staged, err := landmarks.NeedsEvaluationStage(ctx, reg, task, graph)
	if err != nil {
		return nil, err
	}
	logger.Info("pipeline ready",
		"landmarks", graph.NodeCount(), "staged_evaluation", staged)

	base := heuristic.NewDTG(task, set, reg,
		heuristic.WithLogger(logger),
		heuristic.WithPenalty(cfg.Heuristic.Penalty),
		heuristic.WithThreads(workers))
	var eval heuristic.Evaluator = base
	switch cfg.Heuristic.Name {
	case config.HeuristicLandmarks:
		eval = heuristic.NewLandmarks(base, graph, heuristic.ModeAdditive)
	case config.HeuristicIncrementalDTG:
		eval = heuristic.NewLandmarks(base, graph, heuristic.ModeIncremental)
	}

	if !driver {
		return nil, base.ServeSearch(ctx)
	}

	d := search.NewDriver(pop.NewArena(task), eval,
		search.WithLogger(logger),
		search.WithWorkers(workers),
		search.WithMaxPlans(cfg.Search.MaxPlans))
	plan, runErr := d.Run(ctx)
	if err := base.EndSearch(ctx); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return nil, runErr
	}
	return plan, nil
}
