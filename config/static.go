package config

import (
	"io/ioutil"
	"path/filepath"
	"reflect"
	"time"

	yaml "gopkg.in/yaml.v2"
)

type (
	//StaticCfg is the container for other static config sections
	StaticCfg struct {
		MongoDB      MongoDBStaticCfg     `yaml:"MongoDB"`
		Log          LogStaticCfg         `yaml:"LogConfig"`
		UserConfig   UserCfgStaticCfg     `yaml:"UserConfig"`
		Sync         SyncStaticCfg        `yaml:"Sync"`
		Correlation  CorrelationStaticCfg `yaml:"Correlation"`
		Metrics      MetricsStaticCfg     `yaml:"Metrics"`
		Version      string
		ExactVersion string
	}

	//MongoDBStaticCfg contains the means for connecting to MongoDB
	MongoDBStaticCfg struct {
		ConnectionString string        `yaml:"ConnectionString" default:"mongodb://localhost:27017"`
		AuthMechanism    string        `yaml:"AuthenticationMechanism"`
		SocketTimeout    time.Duration `yaml:"SocketTimeout"`
		TLS              TLSStaticCfg  `yaml:"TLS"`
		Database         string        `yaml:"Database" default:"threatsync"`
	}

	//TLSStaticCfg contains the means for connecting to MongoDB over TLS
	TLSStaticCfg struct {
		Enabled           bool   `yaml:"Enable"`
		VerifyCertificate bool   `yaml:"VerifyCertificate"`
		CAFile            string `yaml:"CAFile"`
	}

	//LogStaticCfg contains the configuration for logging
	LogStaticCfg struct {
		LogLevel  int    `yaml:"LogLevel" default:"2"`
		LogPath   string `yaml:"LogPath" default:"/var/lib/threatsync/logs"`
		LogToFile bool   `yaml:"LogToFile" default:"true"`
		LogToDB   bool   `yaml:"LogToDB" default:"true"`
	}

	//UserCfgStaticCfg contains the configuration for the update checker
	UserCfgStaticCfg struct {
		UpdateCheckFrequency int `yaml:"UpdateCheckFrequency" default:"14"`
	}

	//SyncStaticCfg controls pulling from and pushing to peer instances
	SyncStaticCfg struct {
		HostOrgID          int64          `yaml:"HostOrgID" default:"1"`
		Workers            int            `yaml:"Workers" default:"4"`
		ConnectTimeout     int            `yaml:"ConnectTimeout" default:"10"`
		ReadTimeout        int            `yaml:"ReadTimeout" default:"60"`
		ProposalWindowDays int            `yaml:"ProposalWindowDays" default:"90"`
		SightingSync       bool           `yaml:"SightingSync"`
		MinPeerVersion     string         `yaml:"MinPeerVersion" default:"2.4.0"`
		OrgCacheSize       int            `yaml:"OrgCacheSize" default:"1024"`
		User               SyncUserStatic `yaml:"User"`
	}

	//SyncUserStatic describes the local user sync jobs act as
	SyncUserStatic struct {
		ID           int64  `yaml:"ID" default:"1"`
		Email        string `yaml:"Email" default:"admin@admin.test"`
		OrgID        int64  `yaml:"OrgID" default:"1"`
		SiteAdmin    bool   `yaml:"SiteAdmin" default:"true"`
		GalaxyEditor bool   `yaml:"GalaxyEditor" default:"true"`
	}

	//CorrelationStaticCfg is used to control the correlation engine
	CorrelationStaticCfg struct {
		Threshold int `yaml:"Threshold" default:"20"`
		Workers   int `yaml:"Workers" default:"4"`
	}

	//MetricsStaticCfg controls where job metrics are pushed
	MetricsStaticCfg struct {
		PushGateway string `yaml:"PushGateway"`
	}
)

// loadStaticConfig attempts to parse a config file
func loadStaticConfig(cfgPath string, config *StaticCfg) error {
	cfgFile, err := ioutil.ReadFile(cfgPath)
	if err != nil {
		return err
	}
	return parseStaticConfig(cfgFile, config)
}

// parseStaticConfig parses the yaml contents of a config file into
// config, expanding environment variables and cleaning file paths
func parseStaticConfig(cfgFile []byte, config *StaticCfg) error {
	err := yaml.Unmarshal(cfgFile, config)
	if err != nil {
		return err
	}

	// expand env variables, config is a pointer
	// so we have to call elem on the reflect value
	expandConfig(reflect.ValueOf(config).Elem())

	// set the socket time out in hours
	if config.MongoDB.SocketTimeout <= 0 {
		config.MongoDB.SocketTimeout = 2
	}
	config.MongoDB.SocketTimeout *= time.Hour

	// clean all filepaths
	if config.Log.LogPath != "" {
		config.Log.LogPath = filepath.Clean(config.Log.LogPath)
	}
	if config.MongoDB.TLS.CAFile != "" {
		config.MongoDB.TLS.CAFile = filepath.Clean(config.MongoDB.TLS.CAFile)
	}

	// grab the version constants set by the build process
	config.Version = Version
	config.ExactVersion = ExactVersion

	return nil
}
