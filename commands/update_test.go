package commands

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/blang/semver"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	checked time.Time
	version string
	saves   int
}

func (f *fakeChecker) LastUpdateCheck() (time.Time, string, error) {
	return f.checked, f.version, nil
}

func (f *fakeChecker) SaveUpdateCheck(checked time.Time, version string) error {
	f.checked = checked
	f.version = version
	f.saves++
	return nil
}

func TestVersionCompare(t *testing.T) {

	Base, _ := semver.Parse("1.1.1")
	Major, _ := semver.Parse("2.3.4")
	Minor, _ := semver.Parse("1.2.3")
	Patch, _ := semver.Parse("1.1.9")

	assert.Equal(t, 0, versionDiffIndex(Major, Base),
		"Should return new Major")
	assert.Equal(t, 1, versionDiffIndex(Minor, Base),
		"Should return new Minor")
	assert.Equal(t, 2, versionDiffIndex(Patch, Base),
		"Should return new Patch")

}

func TestInformUser(t *testing.T) {

	Base, _ := semver.Parse("1.1.1")
	Major, _ := semver.Parse("2.3.4")
	assert.Equal(t,
		fmt.Sprintf(informFmtStr, "Major", "2.3.4"),
		informUser(Base, Major),
		"Should be identical strings")
}

func TestCheckForUpdate(t *testing.T) {
	logger, _ := test.NewNullLogger()
	calls := 0
	remote := func() (semver.Version, error) {
		calls++
		return semver.MustParse("1.3.0"), nil
	}

	checker := &fakeChecker{}
	notice := checkForUpdate(checker, 14, "v1.2.0", remote, logger)
	assert.Equal(t, fmt.Sprintf(informFmtStr, "Minor", "1.3.0"), notice)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, checker.saves)
	assert.Equal(t, "1.3.0", checker.version)

	//a recent check reuses the recorded version
	notice = checkForUpdate(checker, 14, "v1.2.0", remote, logger)
	assert.NotEmpty(t, notice)
	assert.Equal(t, 1, calls)

	assert.Empty(t, checkForUpdate(checker, 14, "v1.3.0", remote, logger))
	assert.Empty(t, checkForUpdate(checker, 0, "v1.2.0", remote, logger))
	assert.Empty(t, checkForUpdate(checker, 14, "undefined", remote, logger))

	failing := func() (semver.Version, error) { return semver.Version{}, errors.New("offline") }
	assert.Empty(t, checkForUpdate(&fakeChecker{}, 14, "v1.2.0", failing, logger))
}
