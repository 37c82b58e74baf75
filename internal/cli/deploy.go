package cli

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"sitedeploy/internal/build"
	"sitedeploy/internal/config"
	"sitedeploy/internal/database"
	"sitedeploy/internal/history"
	"sitedeploy/internal/logging"
	"sitedeploy/internal/profile"
	"sitedeploy/internal/remote"
	"sitedeploy/internal/services/deploy"
)

func newDeployCmd() *cobra.Command {
	var (
		projectPath   string
		outputPath    string
		configuration string
		buildCommand  string
		appOffline    bool
		cleanup       bool
		excludes      []string
		concurrency   int
		retries       int
		dryRun        bool
		yes           bool
		noProgress    bool
	)

	cmd := &cobra.Command{
		Use:   "deploy <profile>",
		Short: "Build the project and deploy it to the profile's server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileName := args[0]
			cfg := config.Get()
			store := profile.NewStore(database.GetDB())

			prof, _, err := store.Load(profileName)
			if err != nil {
				return err
			}
			if projectPath == "" {
				projectPath = prof.ProjectPath
			}
			if projectPath == "" {
				return fmt.Errorf("no project path: pass --project or set it on the profile")
			}
			if configuration == "" {
				configuration = prof.Configuration
			}
			if buildCommand == "" {
				buildCommand = prof.BuildCommand
			}
			if buildCommand == "" {
				buildCommand = cfg.BuildCommand
			}
			if concurrency == 0 {
				concurrency = cfg.MaxConcurrency
			}
			if retries < 0 {
				retries = cfg.MaxRetries
			}

			cleanupMode := deploy.CleanupNone
			if cleanup {
				cleanupMode = deploy.CleanupFull
			}
			opts := deploy.Options{
				ProfileName:     profileName,
				ProjectPath:     projectPath,
				OutputPath:      outputPath,
				Configuration:   configuration,
				AppOffline:      appOffline,
				Cleanup:         cleanupMode,
				ExcludePatterns: excludes,
				MaxConcurrency:  concurrency,
				MaxRetries:      retries,
				ConnectTimeout:  cfg.ConnectTimeout,
				DryRun:          dryRun,
				PreConfirmed:    yes,
			}

			orch := deploy.NewOrchestrator(
				store,
				&build.CommandBuilder{Command: buildCommand, Log: logging.For("build")},
				remote.ClientFactory{},
				history.NewRecorder(database.GetDB()),
				logging.For("deploy"),
			)
			orch.SetConfirmer(confirmDeployment(cmd))
			if !noProgress {
				attachProgressBar(cmd, orch)
			}

			// First interrupt requests a graceful stop; a second one kills
			// the process.
			sigCh := make(chan os.Signal, 2)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				<-sigCh
				fmt.Fprintln(cmd.ErrOrStderr(), "cancellation requested, finishing in-flight transfers...")
				orch.Cancel()
				<-sigCh
				os.Exit(130)
			}()

			result := orch.Execute(cmd.Context(), opts)
			printResult(cmd, result)
			if result.Cancelled {
				return fmt.Errorf("deployment cancelled")
			}
			if !result.Success {
				return fmt.Errorf("deployment failed at stage %s", result.FinalStage)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectPath, "project", "", "project directory (defaults to the profile's project path)")
	cmd.Flags().StringVar(&outputPath, "output", "", "build output directory (defaults to a temp directory)")
	cmd.Flags().StringVarP(&configuration, "configuration", "c", "", "build configuration, e.g. Release")
	cmd.Flags().StringVar(&buildCommand, "build-command", "", "shell command producing the deployable output")
	cmd.Flags().BoolVar(&appOffline, "app-offline", false, "take the site offline during the deployment")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "delete remote files that are not part of this deployment")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil, "glob pattern to exclude, repeatable")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent transfer connections (1-20)")
	cmd.Flags().IntVar(&retries, "retries", -1, "per-file retry attempts (0-10)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "stop after the pre-deployment summary")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress bar")
	return cmd
}

// confirmDeployment prints the pre-deployment summary and asks for a
// yes/no answer on stdin.
func confirmDeployment(cmd *cobra.Command) deploy.Confirmer {
	return func(s deploy.State) bool {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "\nDeploying %q to %s\n", s.ProfileName, s.Host)
		fmt.Fprintf(out, "  files: %d\n", s.TotalFiles)
		fmt.Fprintf(out, "  bytes: %s\n", formatBytes(s.TotalBytes))
		fmt.Fprint(out, "Proceed? [y/N]: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		answer, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}

// attachProgressBar renders a byte-based bar while files are uploading.
func attachProgressBar(cmd *cobra.Command, orch *deploy.Orchestrator) {
	var (
		mu  sync.Mutex
		bar *progressbar.ProgressBar
	)
	orch.OnStageChange(func(c deploy.StageChange) {
		mu.Lock()
		defer mu.Unlock()
		if c.From == deploy.StageUploadingFiles && bar != nil {
			_ = bar.Finish()
			bar = nil
			fmt.Fprintln(cmd.ErrOrStderr())
		}
		if c.To != deploy.StageUploadingFiles && !c.To.Terminal() {
			fmt.Fprintf(cmd.ErrOrStderr(), "==> %s\n", c.To)
		}
	})
	orch.OnProgress(func(s deploy.State) {
		if s.Stage != deploy.StageUploadingFiles {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if bar == nil {
			bar = progressbar.NewOptions64(s.TotalBytes,
				progressbar.OptionSetDescription("uploading"),
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionShowBytes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionClearOnFinish(),
			)
		}
		_ = bar.Set64(s.UploadedBytes)
	})
}

func printResult(cmd *cobra.Command, r *deploy.Result) {
	out := cmd.OutOrStdout()
	switch {
	case r.Cancelled:
		fmt.Fprintf(out, "\nDeployment cancelled after %s\n", r.Duration().Round(timeRound))
	case r.Success:
		fmt.Fprintf(out, "\nDeployment succeeded in %s\n", r.Duration().Round(timeRound))
	default:
		fmt.Fprintf(out, "\nDeployment failed at stage %s after %s\n", r.FinalStage, r.Duration().Round(timeRound))
	}
	fmt.Fprintf(out, "  uploaded: %d/%d files, %s\n", r.UploadedFiles, r.TotalFiles, formatBytes(r.UploadedBytes))
	if r.FailedFiles > 0 {
		fmt.Fprintf(out, "  failed:   %d files\n", r.FailedFiles)
		for _, p := range r.FailedPaths {
			fmt.Fprintf(out, "    %s\n", p)
		}
	}
	if r.ObsoleteDeleted > 0 {
		fmt.Fprintf(out, "  cleaned:  %d obsolete files\n", r.ObsoleteDeleted)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "  warning:  %s\n", w)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(out, "  error:    %s\n", e)
	}
}
