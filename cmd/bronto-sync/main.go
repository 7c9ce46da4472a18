package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"keepersecurity.com/ksm-bronto/bronto"
)

type app struct {
	v      *viper.Viper
	sync   bronto.IBrontoSync
	logger *zap.Logger
}

func (a *app) wire(ctx context.Context) (err error) {
	var cfg *bronto.Config
	if cfg, err = bronto.LoadConfig(a.v); err != nil {
		return
	}
	if a.logger, err = bronto.NewLogger(cfg.LogFile); err != nil {
		return
	}
	if a.sync, err = bronto.NewBrontoSyncFromConfig(ctx, cfg, a.logger); err != nil {
		if errors.Is(err, bronto.ErrNoToken) {
			a.logger.Error("Plugin halted. No token provided")
		}
	}
	return
}

func (a *app) close(ctx context.Context) {
	if a.sync != nil {
		_ = a.sync.Close(ctx)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func printResult(w io.Writer, result *bronto.SyncResult) {
	if result == nil {
		return
	}
	var status = "Success"
	if !result.Success {
		status = "Failure"
	}
	_, _ = fmt.Fprintf(w, "%s %s:\n\tID: %s\n\tEmail: %s\n\tMessage: %s\n",
		result.Operation, status, result.UserId, result.Email, result.Message)
}

func newRootCommand() *cobra.Command {
	var a = &app{v: viper.New()}

	var root = &cobra.Command{
		Use:           "bronto-sync",
		Short:         "Synchronize directory users with Bronto contacts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.wire(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.close(cmd.Context())
		},
	}
	root.PersistentFlags().String("api-url", "", "Bronto SOAP API URL")
	root.PersistentFlags().String("cache", "", "reference data cache: memory or mongo")
	root.PersistentFlags().String("log-file", "", "append log entries to this file")
	root.PersistentFlags().Bool("group-mapping", true, "map directory groups to Bronto lists by name")
	_ = a.v.BindPFlag("api_url", root.PersistentFlags().Lookup("api-url"))
	_ = a.v.BindPFlag("cache", root.PersistentFlags().Lookup("cache"))
	_ = a.v.BindPFlag("log_file", root.PersistentFlags().Lookup("log-file"))
	_ = a.v.BindPFlag("group_mapping", root.PersistentFlags().Lookup("group-mapping"))

	root.AddCommand(&cobra.Command{
		Use:   "add <user-id>",
		Short: "Create or update the Bronto contact of a new directory user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result, err = a.sync.AddUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	})

	var priorEmail string
	var update = &cobra.Command{
		Use:   "update <user-id>",
		Short: "Synchronize a changed directory user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var prior *bronto.LocalUser
			if len(priorEmail) > 0 {
				prior = &bronto.LocalUser{Id: args[0], Email: priorEmail}
			}
			var result, err = a.sync.UpdateUser(cmd.Context(), args[0], prior)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	update.Flags().StringVar(&priorEmail, "prior-email", "", "email the user had before the change")
	root.AddCommand(update)

	var deletedEmail string
	var remove = &cobra.Command{
		Use:   "delete <user-id>",
		Short: "Delete the Bronto contact of a directory user",
		Long: "Delete the Bronto contact of a directory user.\n" +
			"Pass --email when the user is no longer known to the directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result *bronto.SyncResult
			var err error
			if len(deletedEmail) > 0 {
				result, err = a.sync.RemoveContact(cmd.Context(), &bronto.LocalUser{Id: args[0], Email: deletedEmail})
			} else {
				result, err = a.sync.DeleteUser(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	remove.Flags().StringVar(&deletedEmail, "email", "", "email of the deleted user")
	root.AddCommand(remove)

	root.AddCommand(&cobra.Command{
		Use:   "fields",
		Short: "List Bronto contact fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var fields, err = a.sync.Fields(cmd.Context())
			if err != nil {
				return err
			}
			for _, f := range fields {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", f.Id, f.Name, f.Type)
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "lists",
		Short: "List Bronto mailing lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var lists, err = a.sync.Lists(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range lists {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\n", l.Id, l.Name, l.ActiveCount)
			}
			return nil
		},
	})

	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
