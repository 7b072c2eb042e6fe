package config

import (
	"github.com/creasty/defaults"
)

const testConfig = `
MongoDB:
    ConnectionString: null
    AuthenticationMechanism: null
    SocketTimeout: 2
    TLS:
        Enable: false
        VerifyCertificate: false
        CAFile: null
    Database: threatsync-test
LogConfig:
    LogLevel: 3
    LogPath: null
    LogToFile: false
    LogToDB: true
UserConfig:
    UpdateCheckFrequency: 14
Sync:
    HostOrgID: 1
    Workers: 2
    ConnectTimeout: 5
    ReadTimeout: 10
    ProposalWindowDays: 90
    SightingSync: true
    MinPeerVersion: 2.4.0
    OrgCacheSize: 64
    User:
        ID: 1
        Email: admin@admin.test
        OrgID: 1
        SiteAdmin: true
        GalaxyEditor: true
Correlation:
    Threshold: 20
    Workers: 2
`

// LoadTestingConfig loads the hard coded testing config
func LoadTestingConfig(mongoURI string) (*Config, error) {
	config := &Config{}

	// Initialize table config to the default values
	if err := defaults.Set(&config.T); err != nil {
		return nil, err
	}

	// Initialize static config to the default values
	if err := defaults.Set(&config.S); err != nil {
		return nil, err
	}

	// Deserialize the yaml file contents into the static config
	if err := parseStaticConfig([]byte(testConfig), &config.S); err != nil {
		return nil, err
	}

	config.S.MongoDB.ConnectionString = mongoURI
	config.S.Version = "v0.0.0+testing"
	config.S.ExactVersion = "v0.0.0+testing"

	// Use the static config to initialize the running config
	if err := initRunningConfig(&config.S, &config.R); err != nil {
		return nil, err
	}

	return config, nil
}
