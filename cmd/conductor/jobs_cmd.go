package main

import (
	"context"
	"fmt"
	"os"

	"github.com/conductor-hq/conductor-stock/cmd/conductor/cli"
	"github.com/conductor-hq/conductor-stock/internal/app"
)

const jobsUsage = "usage: conductor jobs trigger <task> | queue | scheduled"

// runJobsCommand drives the ops helper against the configured Redis: enqueue
// a background task by name, or inspect the default queue.
func runJobsCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, jobsUsage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect redis:", err)
		return 1
	}
	defer jobsCLI.Close()

	ctx := context.Background()
	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: conductor jobs trigger <task>")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", args[1], info.ID, info.Queue)
	case "queue":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, 20)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		for _, task := range tasks {
			fmt.Printf("%s %s next=%s\n", task.ID, task.Type, task.NextProcessAt)
		}
	default:
		fmt.Fprintln(os.Stderr, jobsUsage)
		return 2
	}
	return 0
}
