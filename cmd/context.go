package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/ZacxDev/mirrortex/config"
	"github.com/ZacxDev/mirrortex/fs"
	"github.com/ZacxDev/mirrortex/logging"
)

// Context holds what a command needs once flags, environment and the config
// file have been merged.
type Context struct {
	context.Context

	Command *cobra.Command
	Config  config.Config
	FS      fs.FileSystem

	viper *viper.Viper
}

// NewContext loads the config file, applies environment and flag overrides
// on top, and attaches a logger to the command's context.
func NewContext(cmd *cobra.Command, fsys fs.FileSystem) (*Context, error) {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return nil, err
	}

	filename := v.GetString(configFlag.name)
	explicit := filename != ""
	if !explicit {
		filename = config.DefaultFile
	}

	cfg, found, err := config.Load(fsys, filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if explicit && !found {
		return nil, errors.Errorf("config file %s not found", filename)
	}

	if err := overlay(&cfg, v); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	c := &Context{
		Context: cmd.Context(),
		Command: cmd,
		Config:  cfg,
		FS:      fsys,
		viper:   v,
	}
	c.LogTo(cmd.ErrOrStderr())

	return c, nil
}

// overlay applies values set through flags or MIRRORTEX_ variables.
func overlay(cfg *config.Config, v *viper.Viper) error {
	if v.IsSet(rootFlag.name) {
		defaultOutput := cfg.Output == filepath.Join(cfg.Root, "output")
		root, err := filepath.Abs(v.GetString(rootFlag.name))
		if err != nil {
			return errors.Wrap(err, "failed to resolve root")
		}
		cfg.Root = root
		if defaultOutput {
			cfg.Output = filepath.Join(root, "output")
		}
	}
	if v.IsSet(outputFlag.name) {
		output, err := filepath.Abs(v.GetString(outputFlag.name))
		if err != nil {
			return errors.Wrap(err, "failed to resolve output")
		}
		cfg.Output = output
	}
	if v.IsSet(toolFlag.name) {
		cfg.Tool = v.GetString(toolFlag.name)
	}
	if v.IsSet(timeoutFlag.name) {
		timeout, err := time.ParseDuration(v.GetString(timeoutFlag.name))
		if err != nil {
			return errors.Wrap(err, "invalid timeout")
		}
		cfg.Timeout = timeout
	}
	if v.IsSet(includeFlag.name) {
		cfg.Include = v.GetString(includeFlag.name)
	}
	if v.IsSet(excludeFlag.name) {
		cfg.Exclude = v.GetStringSlice(excludeFlag.name)
	}
	return nil
}

// LogTo replaces the context's logger with one writing to w.
func (c *Context) LogTo(w io.Writer) {
	noColor := os.Getenv("NO_COLOR") != ""
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		noColor = true
	}

	logger := logging.New(logging.Options{
		Debug:   c.Bool(debugFlag.name),
		Format:  c.viper.GetString(logFormatFlag.name),
		Writer:  w,
		NoColor: noColor,
	})
	c.Context = logging.WithLogger(c.Context, logger)
}

func (c *Context) Bool(name string) bool {
	return c.viper.GetBool(name)
}

func (c *Context) Log() *zerolog.Logger {
	return logging.FromContext(c.Context)
}

// NewCommand registers flags on cmd and wires runFunc behind NewContext.
func NewCommand(cmd *cobra.Command, flags []commandLineFlag, runFunc func(ctx *Context, args []string) error) *cobra.Command {
	initFlags(cmd.Flags(), flags...)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, err := NewContext(cmd, fs.RealFileSystem{})
		if err != nil {
			logger := logging.New(logging.Options{Writer: cmd.ErrOrStderr(), NoColor: true})
			logger.Error().Err(err).Msg("Initialization error")
			return err
		}
		if err := runFunc(ctx, args); err != nil {
			ctx.Log().Error().Err(err).Msg("Command failed")
			return err
		}
		return nil
	}

	return cmd
}
