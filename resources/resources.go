package resources

import (
	"fmt"
	"os"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/database"
	log "github.com/sirupsen/logrus"
)

type (
	// Resources provides a data structure for passing system Resources
	Resources struct {
		Config *config.Config
		Log    *log.Logger
		DB     *database.DB
	}
)

// InitResources grabs the configuration file and intitializes the configuration data
// returning a *Resources object which has all of the necessary configuration information
func InitResources(userConfig string) *Resources {
	conf, err := config.LoadConfig(userConfig)
	if err != nil {
		fmt.Fprintf(os.Stdout, "Failed to config: %s\n", err.Error())
		os.Exit(-1)
	}

	// Fire up the logging system
	log := initLogger(&conf.S.Log)

	if conf.S.Log.LogToFile {
		if err := addFileLogger(log, conf.S.Log.LogPath); err != nil {
			fmt.Fprintf(os.Stdout, "Failed to create file logger: %s\n", err.Error())
		}
	}

	// Allows code to interact with the database
	db, err := database.NewDB(conf, log)
	if err != nil {
		fmt.Printf("Failed to connect to database: %s\n", err.Error())
		os.Exit(-1)
	}

	//Begin logging to the database
	if conf.S.Log.LogToDB {
		err = addMongoLogger(log, db.Session, conf.S.MongoDB.Database, conf.T.Log.LogTable)
		if err != nil {
			fmt.Printf("Failed to create database logger: %s\n", err.Error())
		}
	}

	//bundle up the system resources
	r := &Resources{
		Config: conf,
		Log:    log,
		DB:     db,
	}
	return r
}
