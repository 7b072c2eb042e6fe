package resources

import (
	"io/ioutil"
	"os"
	"path"
	"time"

	"github.com/activecm/mgorus"
	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/database"
	"github.com/activecm/threatsync/util"
	"github.com/globalsign/mgo"
	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
)

// initLogger creates the logger. Nothing is written until a hook is attached.
func initLogger(logConfig *config.LogStaticCfg) *log.Logger {
	var logs = &log.Logger{}

	logs.Formatter = new(log.TextFormatter)

	logs.Out = ioutil.Discard
	logs.Hooks = make(log.LevelHooks)

	switch logConfig.LogLevel {
	case 3:
		logs.Level = log.DebugLevel
	case 2:
		logs.Level = log.InfoLevel
	case 1:
		logs.Level = log.WarnLevel
	default:
		logs.Level = log.ErrorLevel
	}
	return logs
}

func addFileLogger(logger *log.Logger, logPath string) error {
	time := time.Now().Format(util.TimeFormat)
	logPath = path.Join(logPath, time)
	if !util.Exists(logPath) {
		if err := os.MkdirAll(logPath, 0755); err != nil {
			return err
		}
	}

	logger.Hooks.Add(lfshook.NewHook(lfshook.PathMap{
		log.DebugLevel: path.Join(logPath, "debug.log"),
		log.InfoLevel:  path.Join(logPath, "info.log"),
		log.WarnLevel:  path.Join(logPath, "warn.log"),
		log.ErrorLevel: path.Join(logPath, "error.log"),
		log.FatalLevel: path.Join(logPath, "fatal.log"),
		log.PanicLevel: path.Join(logPath, "panic.log"),
	}, nil))
	return nil
}

func addMongoLogger(logger *log.Logger, ssn *mgo.Session, dbName string, collection string) error {
	err := ssn.DB(dbName).C(collection).Create(&mgo.CollectionInfo{})
	//check if create failed because collection already exists
	if err != nil && !database.IsCollectionExists(err) {
		return err
	}
	logger.Hooks.Add(
		mgorus.NewHookerFromSession(
			ssn, dbName, collection,
		),
	)
	return nil
}
