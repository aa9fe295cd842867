// Package config loads server configuration from config.yml and
// environment variables. Environment wins over file, file over defaults.
package config

import (
	"fmt"
	"os"

	"github.com/gotify/configor"
)

type Configuration struct {
	App struct {
		ListenAddr string `default:"" env:"APP_HOST"`
		Port       int    `default:"8080" env:"APP_PORT"`
	}
	Database struct {
		Path string `default:"attendance.db" env:"DB_PATH"`
	}
	Log struct {
		Level string `default:"info" env:"LOG_LEVEL"`
	}
}

// Addr returns the listen address in host:port form.
func (c *Configuration) Addr() string {
	return fmt.Sprintf("%s:%d", c.App.ListenAddr, c.App.Port)
}

func configFiles() []string {
	if _, err := os.Stat("config.yml"); err != nil {
		return nil
	}
	return []string{"config.yml"}
}

// Load reads configuration from config.yml (if present) and the
// environment.
func Load() (*Configuration, error) {
	conf := new(Configuration)
	if err := configor.New(&configor.Config{}).Load(conf, configFiles()...); err != nil {
		return nil, err
	}
	return conf, nil
}
