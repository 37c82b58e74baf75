package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sitedeploy/internal/build"
	"sitedeploy/internal/config"
	"sitedeploy/internal/database"
	"sitedeploy/internal/history"
	"sitedeploy/internal/logging"
	"sitedeploy/internal/profile"
	"sitedeploy/internal/remote"
	"sitedeploy/internal/services/deploy"
	"sitedeploy/internal/services/scheduler"
)

func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring deployments",
	}
	cmd.AddCommand(
		newScheduleAddCmd(),
		newScheduleListCmd(),
		newScheduleRemoveCmd(),
	)
	return cmd
}

func newScheduleAddCmd() *cobra.Command {
	var (
		profileName string
		cronExpr    string
		appOffline  bool
		cleanup     bool
		disabled    bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create or update a recurring deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newSchedulerService(cmd.Context())
			id, err := svc.UpsertJob(scheduler.UpsertJobRequest{
				Name:        args[0],
				ProfileName: profileName,
				Cron:        cronExpr,
				Enabled:     !disabled,
				AppOffline:  appOffline,
				Cleanup:     cleanup,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schedule %q saved (%s)\n", args[0], id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "connection profile to deploy")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression, 5 or 6 fields")
	cmd.Flags().BoolVar(&appOffline, "app-offline", false, "take the site offline during the deployment")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "delete remote files that are not part of the deployment")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "register the schedule without enabling it")
	_ = cmd.MarkFlagRequired("profile")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recurring deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newSchedulerService(cmd.Context())
			jobs, err := svc.ListJobs()
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no schedules")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPROFILE\tCRON\tENABLED\tLAST STATUS\tNEXT RUN")
			for _, j := range jobs {
				nextRun := "-"
				if j.NextRun != nil {
					nextRun = *j.NextRun
				}
				status := j.LastStatus
				if status == "" {
					status = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", j.Name, j.ProfileName, j.Cron, j.Enabled, status, nextRun)
			}
			return w.Flush()
		},
	}
}

func newScheduleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a recurring deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := newSchedulerService(cmd.Context())
			jobs, err := svc.ListJobs()
			if err != nil {
				return err
			}
			for _, j := range jobs {
				if j.Name == args[0] {
					if err := svc.DeleteJob(j.ID); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "schedule %q removed\n", args[0])
					return nil
				}
			}
			return fmt.Errorf("schedule not found: %s", args[0])
		},
	}
}

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler daemon, executing recurring deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			svc := newSchedulerService(ctx)
			if err := svc.Start(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "scheduler daemon running, press Ctrl-C to stop")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh

			cancel()
			svc.Stop()
			return nil
		},
	}
}

// newSchedulerService builds the scheduler over a runner that constructs a
// fresh orchestrator per job execution.
func newSchedulerService(ctx context.Context) *scheduler.Service {
	cfg := config.Get()
	db := database.GetDB()
	store := profile.NewStore(db)
	recorder := history.NewRecorder(db)

	runner := scheduler.RunnerFunc(func(ctx context.Context, opts deploy.Options) *deploy.Result {
		prof, _, err := store.Load(opts.ProfileName)
		buildCommand := cfg.BuildCommand
		if err == nil {
			if opts.ProjectPath == "" {
				opts.ProjectPath = prof.ProjectPath
			}
			if opts.Configuration == "" {
				opts.Configuration = prof.Configuration
			}
			if prof.BuildCommand != "" {
				buildCommand = prof.BuildCommand
			}
		}
		opts.MaxConcurrency = cfg.MaxConcurrency
		opts.MaxRetries = cfg.MaxRetries
		opts.ConnectTimeout = cfg.ConnectTimeout
		opts.PreConfirmed = true

		orch := deploy.NewOrchestrator(
			store,
			&build.CommandBuilder{Command: buildCommand, Log: logging.For("build")},
			remote.ClientFactory{},
			recorder,
			logging.For("deploy"),
		)
		return orch.Execute(ctx, opts)
	})

	return scheduler.NewService(db, ctx, runner, logging.For("scheduler"))
}
