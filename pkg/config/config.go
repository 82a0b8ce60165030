/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package config loads the engine tunables this core treats as external
// collaborators (spec.md §1: "configuration file parsing... out of
// scope, interfaces only"). It binds environment, flags, and a config
// file through viper, then decodes into the typed Frontend/Backend
// structs the session engine and analyser registry consume.
package config

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/corelb/rproxy/pkg/errors"
)

// Frontend holds the per-listener options the connection-mode negotiator
// and analyser pipeline consult (spec.md §4.11, §6).
type Frontend struct {
	Name       string `mapstructure:"name"`
	Bind       string `mapstructure:"bind"`
	KeepAlive  bool   `mapstructure:"keep_alive"`
	ServerClose bool  `mapstructure:"server_close"`
	HTTPClose  bool   `mapstructure:"http_close"`
	ForceClose bool   `mapstructure:"force_close"`

	AcceptProxy bool `mapstructure:"accept_proxy"`

	// AcceptInvalidHTTPRequest relaxes the request-URI byte validation
	// (spec.md §4.7 "accept-invalid-http-request"), letting non-ASCII
	// bytes through instead of failing the transaction with 400.
	AcceptInvalidHTTPRequest bool `mapstructure:"accept_invalid_http_request"`

	Transparent bool `mapstructure:"transparent"`
	DeferAccept bool `mapstructure:"defer_accept"`
	TFO         bool `mapstructure:"tfo"`
	V4V6        bool `mapstructure:"v4v6"`
	V6Only      bool `mapstructure:"v6only"`
	MSS         int  `mapstructure:"mss"`
	Device      string `mapstructure:"device"`

	TimeoutClient time.Duration `mapstructure:"timeout_client"`
}

// Backend holds the per-backend options, including the retry ladder and
// tarpit timeout the stream interface and analyser pipeline consult
// (spec.md §4.4/§4.7).
type Backend struct {
	Name       string `mapstructure:"name"`
	Servers    []string `mapstructure:"servers"`

	KeepAlive   bool `mapstructure:"keep_alive"`
	ServerClose bool `mapstructure:"server_close"`
	HTTPClose   bool `mapstructure:"http_close"`
	ForceClose  bool `mapstructure:"force_close"`

	Retries int `mapstructure:"retries"`

	TimeoutConnect time.Duration `mapstructure:"timeout_connect"`
	TimeoutServer  time.Duration `mapstructure:"timeout_server"`
	TimeoutTarpit  time.Duration `mapstructure:"timeout_tarpit"`

	CompressAlgos []string `mapstructure:"compress_algos"`
}

// Config is the decoded top-level engine configuration.
type Config struct {
	Frontends []Frontend `mapstructure:"frontends"`
	Backends  []Backend  `mapstructure:"backends"`

	BufferSize int `mapstructure:"buffer_size"`
	TrashSize  int `mapstructure:"trash_size"`
}

// Flags declares the pflag.FlagSet this engine binds into viper, mirroring
// the CLI surface spec.md §1 names as out of scope for this core but
// still needed to locate the config file itself.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("rproxy", pflag.ContinueOnError)
	fs.String("config", "", "path to the engine configuration file")
	fs.Int("buffer-size", 16384, "per-channel buffer size in bytes")
	return fs
}

// Load reads configuration from the file named by the "config" flag (if
// set), environment variables prefixed RPROXY_, and the fs defaults, then
// decodes the merged view into a Config.
func Load(fs *pflag.FlagSet) (*Config, errors.Error) {
	v := viper.New()
	v.SetEnvPrefix("RPROXY")
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.New(errors.Internal, "failed to bind flags", err)
	}
	if f := fs.Lookup("buffer-size"); f != nil {
		if err := v.BindPFlag("buffer_size", f); err != nil {
			return nil, errors.New(errors.Internal, "failed to bind flags", err)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.New(errors.Internal, "failed to read config file", err)
		}
	}

	v.SetDefault("buffer_size", 16384)
	v.SetDefault("trash_size", 4096)

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, errors.New(errors.Internal, "failed to decode configuration", err)
	}

	for i := range cfg.Backends {
		if cfg.Backends[i].Retries == 0 {
			cfg.Backends[i].Retries = 3
		}
	}

	return &cfg, nil
}
