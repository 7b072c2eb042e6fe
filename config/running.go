package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"time"

	"github.com/activecm/mgosec"
	"github.com/blang/semver"
)

type (
	//RunningCfg holds configuration options that are parsed at run time
	RunningCfg struct {
		MongoDB MongoDBRunningCfg
		Sync    SyncRunningCfg
		Version semver.Version
	}

	//MongoDBRunningCfg holds parsed information for connecting to MongoDB
	MongoDBRunningCfg struct {
		AuthMechanismParsed mgosec.AuthMechanism
		TLS                 struct {
			TLSConfig *tls.Config
		}
	}

	//SyncRunningCfg holds the parsed peer connection settings
	SyncRunningCfg struct {
		ConnectTimeout time.Duration
		ReadTimeout    time.Duration
		ProposalWindow time.Duration
		MinPeerVersion semver.Version
	}
)

// initRunningConfig uses data in the static config initialize
// the passed in running config
func initRunningConfig(static *StaticCfg, running *RunningCfg) error {
	var err error

	//parse the tls configuration
	if static.MongoDB.TLS.Enabled {
		tlsConf := &tls.Config{}
		if !static.MongoDB.TLS.VerifyCertificate {
			tlsConf.InsecureSkipVerify = true
		}
		if len(static.MongoDB.TLS.CAFile) > 0 {
			pem, err := ioutil.ReadFile(static.MongoDB.TLS.CAFile)
			if err != nil {
				return fmt.Errorf("could not read MongoDB CA file: %w", err)
			}
			tlsConf.RootCAs = x509.NewCertPool()
			tlsConf.RootCAs.AppendCertsFromPEM(pem)
		}
		running.MongoDB.TLS.TLSConfig = tlsConf
	}

	//parse out the mongo authentication mechanism
	authMechanism, err := mgosec.ParseAuthMechanism(
		static.MongoDB.AuthMechanism,
	)
	if err != nil {
		authMechanism = mgosec.None
		fmt.Println("\t[!] Could not parse MongoDB authentication mechanism")
	}
	running.MongoDB.AuthMechanismParsed = authMechanism

	running.Sync.ConnectTimeout = time.Duration(static.Sync.ConnectTimeout) * time.Second
	running.Sync.ReadTimeout = time.Duration(static.Sync.ReadTimeout) * time.Second
	running.Sync.ProposalWindow = time.Duration(static.Sync.ProposalWindowDays) * 24 * time.Hour

	running.Sync.MinPeerVersion, err = semver.ParseTolerant(static.Sync.MinPeerVersion)
	if err != nil {
		return fmt.Errorf("invalid MinPeerVersion %q: %w", static.Sync.MinPeerVersion, err)
	}

	running.Version, err = semver.ParseTolerant(static.Version)
	if err != nil {
		// development builds are not stamped with a version
		running.Version = semver.Version{}
	}
	return nil
}
