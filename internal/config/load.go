// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/authcore/internal/xdg"
)

// flagKeys maps command-line flag names onto config keys. Flags not listed
// here are not configuration and are ignored by the loader.
var flagKeys = map[string]string{
	"listen":            "listen",
	"metrics-addr":      "metrics_addr",
	"log-format":        "log.format",
	"log-level":         "log.level",
	"store":             "store.backend",
	"auto-migrate":      "store.auto_migrate",
	"ratelimit-backend": "ratelimit.backend",
	"notify-backend":    "notify.backend",
	"notify-sender":     "notify.sender",
	"session-on-reset":  "reset.session_on_reset",
}

// BindFlags registers the configuration flags on fs. Their defaults match
// Default() so an unset flag never overrides the config file.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("listen", d.Listen, "API listen address")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store", d.Store.Backend, "storage backend (postgres or memory)")
	fs.Bool("auto-migrate", d.Store.AutoMigrate, "apply pending migrations on startup")
	fs.String("ratelimit-backend", d.RateLimit.Backend, "rate limit backend (memory or redis)")
	fs.String("notify-backend", d.Notify.Backend, "code delivery backend (ses or stdout)")
	fs.String("notify-sender", d.Notify.Sender, "From address for delivered codes")
	fs.Bool("session-on-reset", d.Reset.SessionOnReset, "issue a session after a successful password reset")
}

// Load builds the configuration. path is the YAML file to read; when empty
// the XDG default is used if it exists. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	filePath, explicit := path, path != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			filePath = p
		}
	}
	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", filePath).Wrap(err)
			}
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if err := env.Parse(&cfg.Secrets); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("source", "environment").Wrap(err)
	}

	return &cfg, nil
}
