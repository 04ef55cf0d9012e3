// Package configuration loads kobold's runtime settings from a config file,
// a ".env" file, and the process environment, in that order of increasing
// precedence, following the same dotenv-then-environment layering mutagen's
// compose environment loader uses for its own variable resolution.
package configuration

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings holds every recognized configuration option.
type Settings struct {
	WatchDirs           []string      `mapstructure:"watch_dirs"`
	OrganizeLibrary     bool          `mapstructure:"organize_library"`
	OrganizeTemplate    string        `mapstructure:"organize_template"`
	ConvertEPUB         bool          `mapstructure:"convert_epub"`
	EmbedMetadata       bool          `mapstructure:"embed_metadata"`
	WorkerPollInterval  time.Duration `mapstructure:"worker_poll_interval"`
	UserToken           string        `mapstructure:"user_token"`
	DataPath            string        `mapstructure:"data_path"`
	WatchForcePolling   bool          `mapstructure:"watch_force_polling"`
}

// defaults mirrors the out-of-the-box behavior of the reference
// implementation: library organization and conversion off, a conventional
// two-level template, and a one-second poll interval.
func defaults(v *viper.Viper) {
	v.SetDefault("watch_dirs", []string{})
	v.SetDefault("organize_library", false)
	v.SetDefault("organize_template", "{author}/{title}")
	v.SetDefault("convert_epub", false)
	v.SetDefault("embed_metadata", false)
	v.SetDefault("worker_poll_interval", time.Second)
	v.SetDefault("data_path", "")
	v.SetDefault("watch_force_polling", false)
}

// Load reads settings from configPath (if non-empty and present), a ".env"
// file in the working directory (if present), and environment variables
// prefixed KOBOLD_, with each source overriding the previous one.
func Load(configPath string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("unable to load .env file: %w", err)
	}

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("KOBOLD")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
				return nil, fmt.Errorf("unable to read configuration file (%s): %w", configPath, err)
			}
		}
	}

	// The poll interval is given in seconds; a plain number is converted
	// here, while a duration string such as "500ms" is left to Unmarshal.
	if seconds, err := strconv.ParseFloat(v.GetString("worker_poll_interval"), 64); err == nil {
		v.Set("worker_poll_interval", time.Duration(seconds*float64(time.Second)))
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	return &settings, nil
}
