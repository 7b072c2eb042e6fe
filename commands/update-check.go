package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/pkg/store"
	"github.com/activecm/threatsync/resources"
	"github.com/blang/semver"
	"github.com/google/go-github/github"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

//Strings used for informing the user of a new version.
var informFmtStr = "\nThere's a new %s version of threatsync %s available at:\nhttps://github.com/activecm/threatsync/releases\n"
var versions = []string{"Major", "Minor", "Patch"}

//updateChecker records when releases were last looked up
type updateChecker interface {
	LastUpdateCheck() (time.Time, string, error)
	SaveUpdateCheck(checked time.Time, version string) error
}

//GetVersionPrinter prints the version and a notice if a newer release exists
func GetVersionPrinter() func(*cli.Context) {
	return func(c *cli.Context) {
		fmt.Printf("%s version %s\n", c.App.Name, c.App.Version)
		fmt.Print(updateCheck(c.String("config")))
	}
}

// updateCheck Performs a check for the new version of threatsync against the git repository and
//returns a string indicating the new version if available
func updateCheck(configFile string) string {
	res := resources.InitResources(configFile)
	st := store.NewMongoStore(res.DB, res.Config, res.Log)
	return checkForUpdate(st, res.Config.S.UserConfig.UpdateCheckFrequency, config.Version, getRemoteVersion, res.Log)
}

// checkForUpdate only contacts github once the last check is older than
// delta days, otherwise the recorded version is used
func checkForUpdate(checker updateChecker, delta int, current string,
	remote func() (semver.Version, error), logger *log.Logger) string {
	if delta <= 0 {
		return ""
	}

	timestamp, recorded, err := checker.LastUpdateCheck()
	if err != nil {
		return ""
	}
	newVersion, _ := semver.ParseTolerant(recorded)

	days := time.Since(timestamp).Hours() / 24
	if days > float64(delta) {
		newVersion, err = remote()
		if err != nil {
			return ""
		}

		logger.WithFields(log.Fields{
			"LastUpdateCheck": time.Now(),
			"NewestVersion":   fmt.Sprint(newVersion),
		}).Info("Checking for new version")

		if err := checker.SaveUpdateCheck(time.Now(), newVersion.String()); err != nil {
			logger.Warn("Could not record update check: " + err.Error())
		}
	}

	configVersion, err := semver.ParseTolerant(current)
	if err != nil {
		return ""
	}

	if newVersion.GT(configVersion) {
		return informUser(configVersion, newVersion)
	}

	return ""
}

// Returns the first index where v1 is greater than v2
func versionDiffIndex(v1 semver.Version, v2 semver.Version) int {
	if v1.Major > v2.Major {
		return 0
	}
	if v1.Minor > v2.Minor {
		return 1
	}

	return 2
}

func getRemoteVersion() (semver.Version, error) {
	client := github.NewClient(nil)
	refs, _, err := client.Git.GetRefs(context.Background(), "activecm", "threatsync", "refs/tags/v")
	if err != nil {
		return semver.Version{}, err
	}
	if len(refs) == 0 {
		return semver.Version{}, fmt.Errorf("no release tags found")
	}
	s := strings.TrimPrefix(refs[len(refs)-1].GetRef(), "refs/tags/")
	return semver.ParseTolerant(s)
}

// Assembles a notice for the user informing them of an upgrade.
// The return value is printed regardless so, "" is returned on errror.
func informUser(local semver.Version, remote semver.Version) string {
	return fmt.Sprintf(informFmtStr,
		versions[versionDiffIndex(remote, local)],
		fmt.Sprint(remote))
}
