package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/activecm/threatsync/pkg/jobs"
	"github.com/activecm/threatsync/pkg/pull"
	"github.com/activecm/threatsync/pkg/push"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

func init() {
	pullCommand := cli.Command{
		Name:  "pull",
		Usage: "Pull events, galaxy clusters, proposals and sightings from a peer",
		Flags: []cli.Flag{
			configFlag,
			serverFlag,
			cli.StringFlag{
				Name:  "technique, t",
				Usage: "Use the pull `TECHNIQUE` (full, incremental, pull_relevant_clusters)",
				Value: string(pull.Full),
			},
			humanFlag,
			progressFlag,
		},
		Action: runPull,
	}

	pushCommand := cli.Command{
		Name:  "push",
		Usage: "Push events, galaxy clusters, proposals and sightings to a peer",
		Flags: []cli.Flag{
			configFlag,
			serverFlag,
			techniqueFlag,
			humanFlag,
			progressFlag,
		},
		Action: runPush,
	}

	bootstrapCommands(pullCommand, pushCommand)
}

// syncRequest reads the peer and technique flags
func syncRequest(c *cli.Context) (jobs.SyncRequest, error) {
	if c.Int64("server") <= 0 {
		return jobs.SyncRequest{}, cli.NewExitError("Specify a server with -s", -1)
	}
	return jobs.SyncRequest{ServerID: c.Int64("server"), Technique: c.String("technique")}, nil
}

// interruptContext is cancelled on SIGINT or SIGTERM so that running
// jobs stop dispatching work and report what was done
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigs:
			fmt.Fprintln(os.Stderr, "\t[!] Interrupted, stopping")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigs)
	}()
	return ctx, cancel
}

func runPull(c *cli.Context) error {
	req, err := syncRequest(c)
	if err != nil {
		return err
	}
	env, err := initJobs(c)
	if err != nil {
		return cli.NewExitError(err.Error(), -1)
	}
	defer env.finish("pull")

	ctx, cancel := interruptContext()
	defer cancel()

	start := time.Now()
	fmt.Fprintf(os.Stderr, "\t[+] Pulling from server %d (%s)\n", req.ServerID, req.Technique)
	result, err := env.jobs.RunPull(ctx, jobs.SyncUser(env.res.Config), req)
	if err != nil {
		env.res.Log.WithFields(log.Fields{
			"server_id": req.ServerID,
			"technique": req.Technique,
			"error":     err.Error(),
		}).Error("Pull failed")
		return cli.NewExitError("Pull failed: "+err.Error(), -1)
	}
	fmt.Fprintf(os.Stderr, "\t[+] Finished pulling in %s\n", elapsed(start))

	if c.Bool("human-readable") {
		showCounts([][]string{
			{"Events pulled", strconv.Itoa(result.EventsSuccess)},
			{"Events failed", strconv.Itoa(result.EventsFail)},
			{"Events skipped", strconv.Itoa(result.EventsSkipped)},
			{"Galaxy clusters", strconv.Itoa(result.ClustersPulled)},
			{"Proposals", strconv.Itoa(result.ProposalsPulled)},
			{"Sightings", strconv.Itoa(result.SightingsPulled)},
		})
		return nil
	}
	return printJSON(result)
}

func runPush(c *cli.Context) error {
	req, err := syncRequest(c)
	if err != nil {
		return err
	}
	env, err := initJobs(c)
	if err != nil {
		return cli.NewExitError(err.Error(), -1)
	}
	defer env.finish("push")

	ctx, cancel := interruptContext()
	defer cancel()

	start := time.Now()
	fmt.Fprintf(os.Stderr, "\t[+] Pushing to server %d (%s)\n", req.ServerID, req.Technique)
	result, err := env.jobs.RunPush(ctx, jobs.SyncUser(env.res.Config), req)
	if err != nil {
		env.res.Log.WithFields(log.Fields{
			"server_id": req.ServerID,
			"technique": req.Technique,
			"error":     err.Error(),
		}).Error("Push failed")
		return cli.NewExitError("Push failed: "+err.Error(), -1)
	}
	fmt.Fprintf(os.Stderr, "\t[+] Finished pushing in %s\n", elapsed(start))

	if c.Bool("human-readable") {
		showPushResult(result)
		return nil
	}
	return printJSON(result)
}

func showPushResult(result push.Result) {
	showCounts([][]string{
		{"Events pushed", strconv.Itoa(result.EventsPushed)},
		{"Events failed", strconv.Itoa(result.EventsFailed)},
		{"Galaxy clusters", strconv.Itoa(result.ClustersPushed)},
		{"Proposals", strconv.Itoa(result.ProposalsPushed)},
		{"Sightings", strconv.Itoa(result.SightingsPushed)},
	})
}

func showCounts(rows [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Item", "Count"})
	table.AppendBulk(rows)
	table.Render()
}
