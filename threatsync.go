package main

import (
	"os"
	"runtime"

	"github.com/activecm/threatsync/commands"
	"github.com/activecm/threatsync/config"
	"github.com/urfave/cli"
)

// Entry point of threatsync
func main() {
	app := cli.NewApp()
	app.Name = "threatsync"
	app.Usage = "Synchronize and correlate threat intelligence between sharing communities"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Use a given `CONFIG_FILE` when checking for updates",
			Value: "",
		},
	}

	// Change the version string with updates so that a quick help command will
	// let the testers know what version of threatsync they're on
	app.Version = config.Version
	cli.VersionPrinter = commands.GetVersionPrinter()

	// Define commands used with this application
	app.Commands = commands.Commands()

	runtime.GOMAXPROCS(runtime.NumCPU())
	app.Run(os.Args)
}
