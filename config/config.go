// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2023 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co, dduncan

package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"

	goredis "github.com/go-redis/redis/v8"
	"gopkg.in/yaml.v3"

	mqtt "github.com/mochi-mqtt/conduit"
	"github.com/mochi-mqtt/conduit/hooks/auth"
	"github.com/mochi-mqtt/conduit/hooks/debug"
	"github.com/mochi-mqtt/conduit/hooks/storage/badger"
	"github.com/mochi-mqtt/conduit/hooks/storage/bolt"
	"github.com/mochi-mqtt/conduit/hooks/storage/pebble"
	"github.com/mochi-mqtt/conduit/hooks/storage/redis"
	"github.com/mochi-mqtt/conduit/listeners"
)

const (
	LoggingOutputJSON = "JSON"
	LoggingOutputText = "TEXT"
)

// logOutput is where loggers built from a config write to.
var logOutput io.Writer = os.Stdout

// config defines the structure of configuration data to be parsed from a config source.
type config struct {
	Options     mqtt.Options
	Listeners   []listeners.Config `yaml:"listeners" json:"listeners"`
	HookConfigs HookConfigs        `yaml:"hooks" json:"hooks"`
	Logging     *Logging           `yaml:"logging" json:"logging"`
}

// Logging configures the server logger.
type Logging struct {
	Output string `yaml:"output" json:"output"` // JSON or TEXT
	Level  string `yaml:"level" json:"level"`   // any slog level name, eg. DEBUG
}

// HookConfigs contains configurations to enable individual hooks.
type HookConfigs struct {
	Auth    *HookAuthConfig    `yaml:"auth" json:"auth"`
	Storage *HookStorageConfig `yaml:"storage" json:"storage"`
	Debug   *debug.Options     `yaml:"debug" json:"debug"`
}

// HookAuthConfig contains configurations for the auth hook.
type HookAuthConfig struct {
	Ledger   auth.Ledger `yaml:"ledger" json:"ledger"`
	AllowAll bool        `yaml:"allow_all" json:"allow_all"`
}

// HookStorageConfig contains configurations for the different storage hooks.
type HookStorageConfig struct {
	Badger *badger.Options `yaml:"badger" json:"badger"`
	Bolt   *bolt.Options   `yaml:"bolt" json:"bolt"`
	Pebble *pebble.Options `yaml:"pebble" json:"pebble"`
	Redis  *RedisConfig    `yaml:"redis" json:"redis"`
}

// RedisConfig contains the connection settings for the redis storage hook.
type RedisConfig struct {
	HPrefix  string `yaml:"h_prefix" json:"h_prefix"`
	Address  string `yaml:"address" json:"address"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Database int    `yaml:"database" json:"database"`
}

// ToHooks converts Hook file configurations into Hooks to be added to the server.
func (hc HookConfigs) ToHooks() []mqtt.HookLoadConfig {
	var hlc []mqtt.HookLoadConfig

	if hc.Auth != nil {
		hlc = append(hlc, hc.toHooksAuth()...)
	}

	if hc.Storage != nil {
		hlc = append(hlc, hc.toHooksStorage()...)
	}

	if hc.Debug != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(debug.Hook),
			Config: hc.Debug,
		})
	}

	return hlc
}

// toHooksAuth converts auth hook configurations into auth hooks.
func (hc HookConfigs) toHooksAuth() []mqtt.HookLoadConfig {
	if hc.Auth.AllowAll {
		return []mqtt.HookLoadConfig{{Hook: new(auth.AllowHook)}}
	}

	return []mqtt.HookLoadConfig{{
		Hook: new(auth.Hook),
		Config: &auth.Options{
			Ledger: &auth.Ledger{ // avoid copying sync.Locker
				Users: hc.Auth.Ledger.Users,
				Auth:  hc.Auth.Ledger.Auth,
				ACL:   hc.Auth.Ledger.ACL,
			},
		},
	}}
}

// toHooksStorage converts storage hook configurations into storage hooks.
func (hc HookConfigs) toHooksStorage() []mqtt.HookLoadConfig {
	var hlc []mqtt.HookLoadConfig
	if hc.Storage.Badger != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(badger.Hook),
			Config: hc.Storage.Badger,
		})
	}

	if hc.Storage.Bolt != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(bolt.Hook),
			Config: hc.Storage.Bolt,
		})
	}

	if hc.Storage.Redis != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(redis.Hook),
			Config: hc.Storage.Redis.toOptions(),
		})
	}

	if hc.Storage.Pebble != nil {
		hlc = append(hlc, mqtt.HookLoadConfig{
			Hook:   new(pebble.Hook),
			Config: hc.Storage.Pebble,
		})
	}
	return hlc
}

// toOptions returns the redis hook options for the config. An empty address
// leaves the hook to its default.
func (rc *RedisConfig) toOptions() *redis.Options {
	o := &redis.Options{HPrefix: rc.HPrefix}
	if rc.Address != "" {
		o.Options = &goredis.Options{
			Addr:     rc.Address,
			Username: rc.Username,
			Password: rc.Password,
			DB:       rc.Database,
		}
	}
	return o
}

// Logger returns a logger writing to stdout in the configured format and level.
// An unrecognised level falls back to info.
func (l *Logging) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Output, LoggingOutputJSON) {
		return slog.New(slog.NewJSONHandler(logOutput, opts))
	}

	return slog.New(slog.NewTextHandler(logOutput, opts))
}

// FromBytes unmarshals a byte slice of JSON or YAML config data into a valid server options value.
// Any hooks configurations are converted into Hooks using the toHooks methods in this package.
func FromBytes(b []byte) (*mqtt.Options, error) {
	if len(b) == 0 {
		return nil, nil
	}

	c := new(config)
	if b[0] == '{' {
		if err := json.Unmarshal(b, c); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, err
		}
	}

	o := c.Options
	o.Hooks = c.HookConfigs.ToHooks()
	o.Listeners = c.Listeners
	if c.Logging != nil {
		o.Logger = c.Logging.Logger()
	}

	return &o, nil
}

// FromFile reads a JSON or YAML config file into server options.
func FromFile(path string) (*mqtt.Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return FromBytes(b)
}
