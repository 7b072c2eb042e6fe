package config

import (
	"fmt"
	"os"
	"os/user"
	"path"
	"reflect"

	"github.com/activecm/threatsync/util"
	"github.com/creasty/defaults"
)

//Version is filled at compile time with the git version of threatsync
var Version = "undefined"

//ExactVersion is filled at compile time with the git commit of threatsync
var ExactVersion = "undefined"

//globalConfigPath is consulted when no user config file exists
const globalConfigPath = "/etc/threatsync/config.yaml"

type (
	//Config holds the configuration for the running system
	Config struct {
		R RunningCfg
		S StaticCfg
		T TableCfg
	}
)

//LoadConfig initializes a Config struct with values read
//from a config file. The file is looked up in order of precedence:
//the given path, ~/.threatsync/config.yaml, /etc/threatsync/config.yaml.
func LoadConfig(cfgPath string) (*Config, error) {
	return loadSystemConfig(findConfigFile(cfgPath))
}

//findConfigFile picks the first configuration file which exists
func findConfigFile(cfgPath string) string {
	if cfgPath != "" {
		return cfgPath
	}

	// Get the user's homedir
	usr, err := user.Current()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not get user info: %s\n", err.Error())
		return globalConfigPath
	}

	userConfig := path.Join(usr.HomeDir, ".threatsync", "config.yaml")
	if util.Exists(userConfig) {
		return userConfig
	}

	return globalConfigPath
}

// loadSystemConfig attempts to parse a config file
func loadSystemConfig(cfgPath string) (*Config, error) {
	config := &Config{}

	if err := defaults.Set(&config.T); err != nil {
		return config, err
	}

	if err := defaults.Set(&config.S); err != nil {
		return config, err
	}

	if err := loadStaticConfig(cfgPath, &config.S); err != nil {
		return config, err
	}

	if err := initRunningConfig(&config.S, &config.R); err != nil {
		return config, err
	}

	return config, nil
}

// expandConfig expands environment variables in config strings
func expandConfig(reflected reflect.Value) {
	for i := 0; i < reflected.NumField(); i++ {
		f := reflected.Field(i)
		// process sub configs
		if f.Kind() == reflect.Struct {
			expandConfig(f)
		} else if f.Kind() == reflect.String {
			f.SetString(os.ExpandEnv(f.String()))
		} else if f.Kind() == reflect.Slice && f.Type().Elem().Kind() == reflect.String {
			strs := f.Interface().([]string)
			for i, str := range strs {
				strs[i] = os.ExpandEnv(str)
			}
			f.Set(reflect.ValueOf(strs))
		}
	}
}
