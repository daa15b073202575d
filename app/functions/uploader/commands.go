// SPDX-FileCopyrightText: Copyright (c) 2016-2025, CloudZero, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	config "github.com/cloudzero/fit-uploader/app/config/uploader"
	"github.com/cloudzero/fit-uploader/app/domain/agent"
	"github.com/cloudzero/fit-uploader/app/domain/credentials"
	"github.com/cloudzero/fit-uploader/app/domain/remote"
	"github.com/cloudzero/fit-uploader/app/types"
)

var (
	outputFormat string
	skipVerify   bool
)

// errAborted makes the sync command exit non-zero.
var errAborted = errors.New("sync aborted")

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		a, err := agent.New(e.ctx, e.settings, agent.WithConfigFiles(configFile), agent.WithEventRing(e.events))
		if err != nil {
			return err
		}
		defer a.Close()

		summary, err := a.SyncNow(e.ctx)
		if err != nil {
			return err
		}
		if err := printSummary(cmd.OutOrStdout(), summary); err != nil {
			return err
		}
		if summary.State == types.CycleAborted {
			return fmt.Errorf("%w: %s", errAborted, summary.Error)
		}
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the fitness service account used for uploads",
	Long: `Login prompts for the account email and password, checks them against the
service and stores them in the credentials file with owner-only permissions.
The password is never echoed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		creds, err := credentials.Prompt(cmd.InOrStdin(), cmd.OutOrStdout(), int(os.Stdin.Fd()))
		if err != nil {
			return err
		}
		return login(e.ctx, cmd.OutOrStdout(), afero.NewOsFs(), e.settings, creds)
	},
}

func login(ctx context.Context, out io.Writer, fs afero.Fs, settings *config.Settings, creds credentials.Credentials) error {
	if !skipVerify {
		client, err := remote.NewClient(ctx, settings, credentials.Static(creds), remote.WithFs(fs))
		if err != nil {
			return err
		}
		sess, err := client.Authenticate(ctx, creds)
		if err != nil {
			return fmt.Errorf("sign in failed: %w", err)
		}
		fmt.Fprintf(out, "Signed in, session valid until %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
	}

	store := credentials.NewFileProvider(fs, settings.Credentials.File)
	if err := store.Save(creds); err != nil {
		return err
	}
	fmt.Fprintf(out, "Credentials saved to %s\n", store.Path())
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last sync and the most recent uploads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		st, err := agent.Inspect(e.ctx, afero.NewOsFs(), e.settings)
		if err != nil {
			return err
		}
		return printStatus(cmd.OutOrStdout(), st, outputFormat)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd)
		if err != nil {
			return err
		}
		raw, err := e.settings.ToYAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(raw)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a configuration file with the given folders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wahoo, _ := cmd.Flags().GetString("wahoo")
		mywhoosh, _ := cmd.Flags().GetString("mywhoosh")
		interval, _ := cmd.Flags().GetDuration("interval")

		s := &config.Settings{
			Wahoo:    config.Source{Folder: wahoo},
			MyWhoosh: config.Source{Folder: mywhoosh},
			Sync:     config.Sync{Interval: interval},
		}
		if err := s.Validate(); err != nil {
			return err
		}
		if err := s.Save(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", args[0])
		return nil
	},
}

func init() {
	loginCmd.Flags().BoolVar(&skipVerify, "no-verify", false, "Store the credentials without signing in first")
	statusCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")

	configInitCmd.Flags().String("wahoo", "", "Wahoo export folder")
	configInitCmd.Flags().String("mywhoosh", "", "MyWhoosh export folder")
	configInitCmd.Flags().Duration("interval", config.DefaultSyncInterval, "Sync interval")
	configCmd.AddCommand(configInitCmd)
}

func printSummary(out io.Writer, summary types.CycleSummary) error {
	fmt.Fprintf(out, "Sync %s: %d uploaded, %d skipped, %d failed\n",
		summary.State, summary.Succeeded, summary.Skipped, summary.Failed)
	for _, r := range summary.Results {
		line := fmt.Sprintf("  %-10s %s", r.Result.Outcome, r.File.Name())
		if r.Error != "" {
			line += " (" + r.Error + ")"
		}
		fmt.Fprintln(out, line)
	}
	if summary.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", summary.Error)
	}
	return nil
}

func printStatus(out io.Writer, st types.AgentStatus, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	case "yaml":
		return yaml.NewEncoder(out).Encode(st)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	fmt.Fprintf(out, "Version:        %s\n", st.Version)
	if st.Stats.LastRunAt.IsZero() {
		fmt.Fprintln(out, "Last sync:      never")
	} else {
		fmt.Fprintf(out, "Last sync:      %s (%s)\n", st.Stats.LastRunAt.Local().Format(time.RFC1123), st.Stats.LastOutcome)
		fmt.Fprintf(out, "Last result:    %d uploaded, %d skipped, %d failed\n", st.Stats.Succeeded, st.Stats.Skipped, st.Stats.Failed)
	}
	if st.Stats.LastError != "" {
		fmt.Fprintf(out, "Last error:     %s\n", st.Stats.LastError)
	}
	fmt.Fprintf(out, "Total uploaded: %d\n", st.Stats.TotalUploaded)
	fmt.Fprintf(out, "Interval:       %s\n", st.Scheduler.Interval)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSOURCE\tFOLDER\tEXISTS")
	for _, f := range st.Folders {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", f.Source, f.Path, f.Exists)
	}
	fmt.Fprintln(tw, "\nRECORDED\tFILE\tSOURCE\tOUTCOME\tREMOTE ID")
	for _, r := range st.RecentUploads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.RecordedAt.Local().Format(time.DateTime), r.Filename, r.Source, r.Outcome, r.RemoteID)
	}
	return tw.Flush()
}
