// Package config holds the runtime options of the bridge and the plumbing
// that fills them from flags, DAPBRIDGE_* environment variables and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/phuongdnguyen/dapbridge/pkg/backtrace"
	"github.com/phuongdnguyen/dapbridge/pkg/engine/delve"
)

// EnvPrefix prefixes environment overrides, e.g. DAPBRIDGE_LISTEN.
const EnvPrefix = "DAPBRIDGE"

// Options holds all configuration of `dapbridge serve`.
type Options struct {
	Listen             string
	DelveAddr          string
	Launch             bool
	BuildFlags         string
	StackChunk         int
	MaxDepth           int
	RequestTimeout     time.Duration
	DeemphasizeRuntime bool
	LogLevel           string
	ConfigFile         string
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		Listen:         "127.0.0.1:60000",
		DelveAddr:      "127.0.0.1:2345",
		StackChunk:     delve.DefaultChunk,
		MaxDepth:       backtrace.DefaultMaxDepth,
		RequestTimeout: 30 * time.Second,
		LogLevel:       "info",
	}
}

// BindFlags attaches the serve flags to fs.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Listen, "listen", o.Listen, "Address the DAP bridge listens on")
	fs.StringVar(&o.DelveAddr, "delve-addr", o.DelveAddr, "Address of the delve headless JSON-RPC server")
	fs.BoolVar(&o.Launch, "launch", o.Launch, "Build the package in the working directory and start a headless delve server on --delve-addr")
	fs.StringVar(&o.BuildFlags, "build-flags", o.BuildFlags, "Extra go build flags used with --launch")
	fs.IntVar(&o.StackChunk, "stack-chunk", o.StackChunk, "Frames fetched from delve by the first round trip of a walk")
	fs.IntVar(&o.MaxDepth, "max-depth", o.MaxDepth, "Maximum native frames visited by one walk (0 disables the bound)")
	fs.DurationVar(&o.RequestTimeout, "request-timeout", o.RequestTimeout, "How long a request waits for the debugger (0 waits forever)")
	fs.BoolVar(&o.DeemphasizeRuntime, "deemphasize-runtime", o.DeemphasizeRuntime, "Mark Go runtime frames with a subtle presentation hint")
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&o.ConfigFile, "config", o.ConfigFile, "Path to a config file (default: dapbridge.yaml in the working directory or $XDG_CONFIG_HOME/dapbridge)")
}

// Validate checks option values that flags alone cannot constrain.
func (o *Options) Validate() error {
	if o.Listen == "" {
		return errors.New("--listen must not be empty")
	}
	if o.DelveAddr == "" {
		return errors.New("--delve-addr must not be empty")
	}
	if o.StackChunk < 1 {
		return fmt.Errorf("--stack-chunk must be positive, got %d", o.StackChunk)
	}
	if o.MaxDepth < 0 {
		return fmt.Errorf("--max-depth must not be negative, got %d", o.MaxDepth)
	}
	if o.RequestTimeout < 0 {
		return fmt.Errorf("--request-timeout must not be negative, got %s", o.RequestTimeout)
	}
	return nil
}

// Bind overlays values from the environment and the config file onto the
// flags of cmd that were not set on the command line.
func Bind(cmd *cobra.Command, configFile string) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	configureConfigFile(v, configFile)

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := readConfigFile(v, configFile != ""); err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var setErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) || setErr != nil {
			return
		}
		val := fmt.Sprintf("%v", v.Get(f.Name))
		if val == "" {
			return
		}
		if err := f.Value.Set(val); err != nil {
			setErr = fmt.Errorf("config value for %s: %w", f.Name, err)
		}
	})
	return setErr
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("dapbridge")
	v.AddConfigPath(".")
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		v.AddConfigPath(filepath.Join(xdg, "dapbridge"))
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "dapbridge"))
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}
