package commands

import (
	"fmt"

	"github.com/activecm/threatsync/pkg/store"
	"github.com/activecm/threatsync/resources"
	"github.com/urfave/cli"
)

func init() {
	command := cli.Command{
		Name:  "create-indexes",
		Usage: "Create the collections and indexes used by threatsync",
		Flags: []cli.Flag{
			configFlag,
		},
		Action: func(c *cli.Context) error {
			res := resources.InitResources(c.String("config"))
			st := store.NewMongoStore(res.DB, res.Config, res.Log)
			if err := st.CreateIndexes(); err != nil {
				res.Log.Error(err)
				return cli.NewExitError("Could not create indexes: "+err.Error(), -1)
			}
			fmt.Println("\t[+] Created collections and indexes in", res.DB.GetSelectedDB())
			return nil
		},
	}

	bootstrapCommands(command)
}
