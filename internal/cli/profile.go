package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sitedeploy/internal/database"
	"sitedeploy/internal/models"
	"sitedeploy/internal/profile"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage connection profiles",
	}
	cmd.AddCommand(
		newProfileAddCmd(),
		newProfileListCmd(),
		newProfileRemoveCmd(),
	)
	return cmd
}

func newProfileAddCmd() *cobra.Command {
	var (
		serverURL     string
		username      string
		password      string
		remoteRoot    string
		projectPath   string
		buildCommand  string
		configuration string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create or update a connection profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("SITEDEPLOY_PASSWORD")
			}
			if password == "" {
				fmt.Fprint(cmd.OutOrStdout(), "Password: ")
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = string(raw)
			}

			store := profile.NewStore(database.GetDB())
			p := &models.ConnectionProfile{
				Name:          args[0],
				ServerURL:     serverURL,
				Username:      username,
				RemoteRoot:    remoteRoot,
				ProjectPath:   projectPath,
				BuildCommand:  buildCommand,
				Configuration: configuration,
			}
			if err := store.Save(p, password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %q saved\n", p.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "", "server base URL, e.g. https://deploy.example.com")
	cmd.Flags().StringVarP(&username, "username", "u", "", "server username")
	cmd.Flags().StringVar(&password, "password", "", "server password (falls back to SITEDEPLOY_PASSWORD, then a prompt)")
	cmd.Flags().StringVar(&remoteRoot, "remote-root", "", "remote directory the site deploys into")
	cmd.Flags().StringVar(&projectPath, "project", "", "default project directory for this profile")
	cmd.Flags().StringVar(&buildCommand, "build-command", "", "default build command for this profile")
	cmd.Flags().StringVarP(&configuration, "configuration", "c", "", "default build configuration")
	_ = cmd.MarkFlagRequired("server")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connection profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := profile.NewStore(database.GetDB())
			profiles, err := store.List()
			if err != nil {
				return err
			}
			if len(profiles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no profiles")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSERVER\tUSERNAME\tREMOTE ROOT\tPROJECT")
			for _, p := range profiles {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.ServerURL, p.Username, p.RemoteRoot, p.ProjectPath)
			}
			return w.Flush()
		},
	}
}

func newProfileRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a connection profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := profile.NewStore(database.GetDB())
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "profile %q removed\n", args[0])
			return nil
		},
	}
}
