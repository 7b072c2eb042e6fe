package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/pkg/jobs"
	"github.com/activecm/threatsync/pkg/metrics"
	"github.com/activecm/threatsync/pkg/peer"
	"github.com/activecm/threatsync/pkg/store"
	"github.com/activecm/threatsync/resources"
	"github.com/activecm/threatsync/util"
	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	allCommands []cli.Command

	// below are some prebuilt flags that get used often in various commands

	configFlag = cli.StringFlag{
		Name:  "config, c",
		Usage: "Use a given `CONFIG_FILE` when running this command",
		Value: "",
	}

	humanFlag = cli.BoolFlag{
		Name:  "human-readable, H",
		Usage: "Print a report instead of JSON",
	}

	delimFlag = cli.StringFlag{
		Name:  "delimiter, d",
		Usage: "Use a given `DELIM` to separate columns when not printing a report",
		Value: ",",
	}

	serverFlag = cli.Int64Flag{
		Name:  "server, s",
		Usage: "Synchronize with the peer `SERVER_ID`",
	}

	techniqueFlag = cli.StringFlag{
		Name:  "technique, t",
		Usage: "Use the given synchronization `TECHNIQUE`",
		Value: "full",
	}

	progressFlag = cli.BoolFlag{
		Name:  "progress, p",
		Usage: "Show progress bars while the job runs",
	}
)

// bootstrapCommands simply adds a given command to the allCommands array
func bootstrapCommands(commands ...cli.Command) {
	allCommands = append(allCommands, commands...)
}

// Commands provides all of the defined commands to the front end
func Commands() []cli.Command {
	return allCommands
}

// jobEnv bundles what a job command needs to run
type jobEnv struct {
	res     *resources.Resources
	store   *store.MongoStore
	metrics *metrics.Metrics
	jobs    *jobs.Surface
}

// initJobs connects to the database and wires the job surface
func initJobs(c *cli.Context) (*jobEnv, error) {
	res := resources.InitResources(c.String("config"))
	st := store.NewMongoStore(res.DB, res.Config, res.Log)

	peers := peer.NewFactory(peer.Options{
		ConnectTimeout: res.Config.R.Sync.ConnectTimeout,
		ReadTimeout:    res.Config.R.Sync.ReadTimeout,
		UserAgent:      "threatsync/" + config.Version,
	}, res.Log)

	m := metrics.New()
	surface, err := jobs.New(st, peers, res.Config, res.Log, m)
	if err != nil {
		return nil, err
	}
	surface.ShowProgress(c.Bool("progress"))

	return &jobEnv{res: res, store: st, metrics: m, jobs: surface}, nil
}

// finish pushes the job metrics to the configured gateway
func (env *jobEnv) finish(job string) {
	gateway := env.res.Config.S.Metrics.PushGateway
	if err := env.metrics.Push(gateway, "threatsync_"+job); err != nil {
		env.res.Log.WithField("gateway", gateway).Warn("Could not push metrics: " + err.Error())
	}
}

// printJSON writes v to stdout as indented JSON
func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

// elapsed reports how long a job took
func elapsed(start time.Time) string {
	return util.FormatDuration(time.Since(start))
}
