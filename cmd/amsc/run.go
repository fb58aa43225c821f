package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/amsc/internal/app"
	"github.com/ternarybob/amsc/internal/scenario"
)

var errScenarioFailed = errors.New("scenario finished with failed steps")

var (
	runVars  map[string]string
	runCheck bool
)

var runCmd = &cobra.Command{
	Use:   "run <scenario.{toml,yaml}>",
	Short: "Run an acceptance scenario",
	Long: `Runs the steps of a scenario file in order against the configured
dashboard and Storage Service. Step config values may reference variables
with {key}: scenario vars, --var overrides and outputs of earlier steps
({transfer_uuid}, {transfer_name}, {sip_uuid}, {job_uuid}, ...).

A failing step saves a screenshot and the page source to the artifacts
directory. The exit code is non-zero when any step failed.`,
	Args: cobra.ExactArgs(1),
	RunE: runScenario,
}

func init() {
	runCmd.Flags().StringToStringVar(&runVars, "var", nil, "set a scenario variable (key=value, repeatable)")
	runCmd.Flags().BoolVar(&runCheck, "check", false, "validate the scenario and list its steps without running it")
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}
	if sc.Vars == nil {
		sc.Vars = make(map[string]string, len(runVars))
	}
	for k, v := range runVars {
		sc.Vars[k] = v
	}

	if runCheck {
		printSteps(cmd.OutOrStdout(), sc)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(config, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	logger.Info().
		Str("scenario", sc.Name).
		Str("path", args[0]).
		Msg("Running scenario")

	result, err := application.Runner.Run(ctx, sc)
	if result != nil {
		printResult(cmd.OutOrStdout(), result)
	}
	if err != nil {
		return err
	}
	if result.Failed() {
		return errScenarioFailed
	}
	return nil
}

func printSteps(w io.Writer, sc *scenario.Scenario) {
	fmt.Fprintf(w, "%s: %d steps\n", sc.Name, len(sc.Steps))
	for i, step := range sc.Steps {
		fmt.Fprintf(w, "%3d  %-28s %s\n", i+1, step.Label(), step.Action)
	}
}

func printResult(w io.Writer, result *scenario.Result) {
	fmt.Fprintf(w, "\n%s (%s)\n", result.Scenario, result.RunID)
	for _, step := range result.Steps {
		status := "ok"
		if step.Err != nil {
			status = "FAIL"
		}
		fmt.Fprintf(w, "  %-4s %-28s %s\n", status, step.Name, step.Duration.Round(time.Millisecond))
		if step.Err != nil {
			fmt.Fprintf(w, "       %v\n", step.Err)
		}
		if step.Capture != nil {
			fmt.Fprintf(w, "       screenshot: %s\n", step.Capture.Screenshot)
			fmt.Fprintf(w, "       source:     %s\n", step.Capture.Source)
		}
	}
}
