// Package config loads application settings and sync workflow files.
//
// Application settings come from, in increasing precedence: built-in
// defaults, ~/.actionsync/config.yaml, ./.actionsync/config.yaml,
// ACTIONSYNC_* environment variables and command-line flags. A .env file in
// the working directory is loaded into the environment first.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Setting keys.
const (
	KeyDB          = "db"
	KeyLogFile     = "log-file"
	KeyLogLevel    = "log-level"
	KeyConcurrency = "concurrency"
	KeyNoColor     = "no-color"
	KeyWorkflow    = "workflow"
	KeyTimeout     = "timeout"
	KeyUser        = "user"
)

// DirName is the per-user and per-project settings directory.
const DirName = ".actionsync"

var v *viper.Viper

func init() {
	v = newViper()
}

func newViper() *viper.Viper {
	nv := viper.New()
	nv.SetConfigType("yaml")
	nv.SetEnvPrefix("ACTIONSYNC")
	nv.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	nv.AutomaticEnv()

	nv.SetDefault(KeyDB, defaultDBPath())
	nv.SetDefault(KeyLogFile, "")
	nv.SetDefault(KeyLogLevel, "info")
	nv.SetDefault(KeyConcurrency, 4)
	nv.SetDefault(KeyNoColor, false)
	nv.SetDefault(KeyWorkflow, "")
	nv.SetDefault(KeyTimeout, 5*time.Minute)
	nv.SetDefault(KeyUser, "")
	return nv
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(DirName, "actionsync.db")
	}
	return filepath.Join(home, DirName, "actionsync.db")
}

// Initialize reads .env and the config files. Missing files are not an
// error; malformed ones are.
func Initialize() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	v = newViper()

	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DirName, "config.yaml"))
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, DirName, "config.yaml"))
	}
	return mergeFiles(candidates)
}

// mergeFiles layers the existing files in order, later ones winning.
func mergeFiles(paths []string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		v.SetConfigFile(p)
		if err := v.MergeInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", p, err)
		}
	}
	return nil
}

// BindFlag lets a command-line flag override key when it was set.
func BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for config key %q", key)
	}
	return v.BindPFlag(key, flag)
}

// ConfigFileUsed returns the last config file merged, or "".
func ConfigFileUsed() string {
	return v.ConfigFileUsed()
}

func GetString(key string) string {
	return v.GetString(key)
}

func GetInt(key string) int {
	return v.GetInt(key)
}

func GetBool(key string) bool {
	return v.GetBool(key)
}

func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// Set overrides a value for the rest of the process.
func Set(key string, value any) {
	v.Set(key, value)
}

// AllSettings returns the merged settings.
func AllSettings() map[string]any {
	return v.AllSettings()
}
