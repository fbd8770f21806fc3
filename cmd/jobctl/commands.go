package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"selflearning/apps/worker/features/job"
)

type JobService interface {
	Enqueue(ctx context.Context, jobType string, payload json.RawMessage) (*job.Job, error)
	List(ctx context.Context, f job.Filter) ([]job.Job, error)
	Retry(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	Purge(ctx context.Context) (int64, error)
	Counts(ctx context.Context) (job.Counts, error)
}

func newRootCmd(svc JobService, maxAttempts int) *cobra.Command {
	root := &cobra.Command{
		Use:           "jobctl",
		Short:         "Inspect and manage the background job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		enqueueCmd(svc),
		listCmd(svc, maxAttempts),
		retryCmd(svc),
		deleteCmd(svc),
		purgeCmd(svc),
		statsCmd(svc),
	)
	return root
}

func enqueueCmd(svc JobService) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <job-type> [payload-json]",
		Short: "Add a job to the queue and wake the workers",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload json.RawMessage
			if len(args) == 2 {
				payload = json.RawMessage(args[1])
			}
			j, err := svc.Enqueue(cmd.Context(), args[0], payload)
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s enqueued.\n", j.ID)
			return nil
		},
	}
}

func listCmd(svc JobService, maxAttempts int) *cobra.Command {
	var dead, retryable bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dead && retryable {
				return fmt.Errorf("--dead and --retryable are mutually exclusive")
			}
			f := job.Filter{Status: job.StatusFailed}
			switch {
			case dead:
				f = job.DeadOnly()
			case retryable:
				f = job.Retryable()
			}

			jobs, err := svc.List(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No failed jobs.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tATTEMPTS\tDEAD\tUPDATED\tCAUSE")
			for _, j := range jobs {
				fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%t\t%s\t%s\n",
					j.ID, j.JobType, j.Attempts, maxAttempts, j.Dead(maxAttempts),
					j.UpdatedAt.Format("2006-01-02 15:04:05"), j.Cause)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&dead, "dead", false, "only jobs that exhausted their attempts")
	cmd.Flags().BoolVar(&retryable, "retryable", false, "only jobs that will be attempted again")
	return cmd
}

func retryCmd(svc JobService) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job-id>",
		Short: "Reset a failed job's attempts and requeue it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := svc.Retry(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("retry %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s requeued.\n", args[0])
			return nil
		},
	}
}

func deleteCmd(svc JobService) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Remove a job from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := svc.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s deleted.\n", args[0])
			return nil
		},
	}
}

func purgeCmd(svc JobService) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every dead-lettered job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := svc.Purge(cmd.Context())
			if err != nil {
				return fmt.Errorf("purge: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d dead jobs.\n", n)
			return nil
		},
	}
}

func statsCmd(svc JobService) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := svc.Counts(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "queued\t%d\n", c.Queued)
			fmt.Fprintf(tw, "failed\t%d\n", c.Failed)
			fmt.Fprintf(tw, "dead\t%d\n", c.Dead)
			return tw.Flush()
		},
	}
}
