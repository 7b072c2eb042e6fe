package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/activecm/threatsync/pkg/correlation"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

func init() {
	correlate := cli.Command{
		Name:      "correlate",
		Usage:     "Correlate the attributes sharing a value",
		ArgsUsage: "<value>",
		Flags: []cli.Flag{
			configFlag,
		},
		Action: func(c *cli.Context) error {
			value := c.Args().Get(0)
			if value == "" {
				return cli.NewExitError("Specify a value", -1)
			}
			env, err := initJobs(c)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			defer env.finish("correlate")

			res, err := env.jobs.CorrelateValue(value)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			return printJSON(res)
		},
	}

	correlatePlugin := cli.Command{
		Name:      "correlate-plugin",
		Usage:     "Correlate the attributes sharing a value using a correlation plugin",
		ArgsUsage: "<plugin> <value>",
		Flags: []cli.Flag{
			configFlag,
		},
		Action: func(c *cli.Context) error {
			plugin := c.Args().Get(0)
			value := c.Args().Get(1)
			if plugin == "" || value == "" {
				return cli.NewExitError("Specify a plugin and a value", -1)
			}
			env, err := initJobs(c)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			defer env.finish("correlate_plugin")

			res, err := env.jobs.CorrelationPlugin(plugin, value)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			return printJSON(res)
		},
	}

	showTop := cli.Command{
		Name:  "show-top-correlations",
		Usage: "Print the correlation values with the most correlations",
		Flags: []cli.Flag{
			configFlag,
			humanFlag,
			delimFlag,
			cli.IntFlag{
				Name:  "limit, l",
				Usage: "Print at most `LIMIT` values, 0 prints every value",
				Value: 0,
			},
		},
		Action: func(c *cli.Context) error {
			env, err := initJobs(c)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			top, err := env.jobs.TopCorrelations()
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			if limit := c.Int("limit"); limit > 0 && limit < len(top.TopCorrelations) {
				top.TopCorrelations = top.TopCorrelations[:limit]
			}

			if c.Bool("human-readable") {
				showTopCorrelationsHuman(top.TopCorrelations)
				return nil
			}
			if c.IsSet("delimiter") {
				showTopCorrelations(top.TopCorrelations, c.String("delimiter"))
				return nil
			}
			return printJSON(top)
		},
	}

	showPlugins := cli.Command{
		Name:  "show-plugins",
		Usage: "Print the registered correlation plugins",
		Flags: []cli.Flag{
			configFlag,
			humanFlag,
		},
		Action: func(c *cli.Context) error {
			env, err := initJobs(c)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			plugins := env.jobs.Plugins()
			if c.Bool("human-readable") {
				showPluginsHuman(plugins)
				return nil
			}
			return printJSON(plugins)
		},
	}

	clean := cli.Command{
		Name:  "clean-excluded-correlations",
		Usage: "Remove the correlations of excluded values",
		Flags: []cli.Flag{
			configFlag,
		},
		Action: func(c *cli.Context) error {
			env, err := initJobs(c)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			defer env.finish("clean_excluded_correlations")

			res, err := env.jobs.CleanExcludedCorrelations()
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			return printJSON(res)
		},
	}

	regenerate := cli.Command{
		Name:  "regenerate-occurrences",
		Usage: "Recompute the occurrences of every correlation value",
		Flags: []cli.Flag{
			configFlag,
			progressFlag,
		},
		Action: func(c *cli.Context) error {
			env, err := initJobs(c)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			defer env.finish("regenerate_occurrences")

			res, err := env.jobs.RegenerateOccurrences()
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			return printJSON(res)
		},
	}

	setThreshold := cli.Command{
		Name:      "set-threshold",
		Usage:     "Change the number of attributes above which a value over correlates",
		ArgsUsage: "<threshold>",
		Flags: []cli.Flag{
			configFlag,
		},
		Action: func(c *cli.Context) error {
			threshold, err := strconv.Atoi(c.Args().Get(0))
			if err != nil {
				return cli.NewExitError("Specify the threshold as an integer", -1)
			}
			env, err := initJobs(c)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			res, err := env.jobs.SetThreshold(threshold)
			if err != nil {
				return cli.NewExitError(err.Error(), -1)
			}
			if err := printJSON(res); err != nil {
				return err
			}
			if !res.ValidThreshold {
				return cli.NewExitError("The threshold must be a positive integer", -1)
			}
			return nil
		},
	}

	bootstrapCommands(correlate, correlatePlugin, showTop, showPlugins, clean, regenerate, setThreshold)
}

func showTopCorrelations(top []correlation.TopCorrelation, delim string) {
	fmt.Println(strings.Join([]string{"Value", "Correlations"}, delim))
	for _, entry := range top {
		fmt.Println(strings.Join([]string{entry.Value, strconv.Itoa(entry.Count)}, delim))
	}
}

func showTopCorrelationsHuman(top []correlation.TopCorrelation) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetColWidth(100)
	table.SetHeader([]string{"Value", "Correlations"})
	for _, entry := range top {
		table.Append([]string{entry.Value, strconv.Itoa(entry.Count)})
	}
	table.Render()
}

func showPluginsHuman(plugins []correlation.PluginInfo) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Type", "Version", "Author", "Description"})
	for _, plugin := range plugins {
		table.Append([]string{
			plugin.Name, string(plugin.CorrelationType), plugin.Version, plugin.Author, plugin.Description,
		})
	}
	table.Render()
}
