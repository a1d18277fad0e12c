package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sbi-steve/backend/pkg/queue"
	"github.com/sbi-steve/backend/pkg/redis"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the transcription queue",
	}
	cmd.AddCommand(newQueueStatusCommand(ctx))
	cmd.AddCommand(newQueueDLQCommand(ctx))
	cmd.AddCommand(newQueueRequeueCommand(ctx))
	return cmd
}

func openQueue(cmd *cobra.Command, ctx *commandContext) (*queue.Queue, func(), error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := ctx.logger()
	rdb, err := redis.NewClient(cmd.Context(), redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		_ = rdb.Close()
		_ = logger.Sync()
	}
	return queue.NewQueue(rdb.Client, logger), closeFn, nil
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending and dead-lettered job counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := openQueue(cmd, ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			pending, err := q.Pending(cmd.Context())
			if err != nil {
				return err
			}
			dead, err := q.DeadLetters(cmd.Context(), 0)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pending:      %d\n", pending)
			fmt.Fprintf(out, "Dead-letter:  %d\n", len(dead))
			return nil
		},
	}
}

func newQueueDLQCommand(ctx *commandContext) *cobra.Command {
	var limit int64
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "List dead-lettered transcription jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := openQueue(cmd, ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			jobs, err := q.DeadLetters(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printJobs(cmd, jobs)
			return nil
		},
	}
	cmd.Flags().Int64Var(&limit, "limit", 50, "Maximum jobs to show")
	return cmd
}

func newQueueRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue",
		Short: "Move every dead-lettered job back onto the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeFn, err := openQueue(cmd, ctx)
			if err != nil {
				return err
			}
			defer closeFn()
			n, err := q.Requeue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s)\n", n)
			return nil
		},
	}
}

func printJobs(cmd *cobra.Command, jobs []*queue.Job) {
	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "Dead-letter queue is empty")
		return
	}
	const stampLayout = "2006-01-02 15:04"
	for _, job := range jobs {
		meeting := "?"
		if p, err := job.Transcription(); err == nil {
			meeting = p.MeetingID.String()
		}
		fmt.Fprintf(out, "%s  meeting=%s  attempts=%d  created=%s\n",
			job.ID, meeting, job.Attempt, job.CreatedAt.Local().Format(stampLayout))
		if job.LastError != "" {
			fmt.Fprintf(out, "    last error: %s\n", job.LastError)
		}
	}
}
