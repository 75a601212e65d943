package cmd

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix namespaces the environment variables that mirror flags, e.g.
// MIRRORTEX_TOOL for --tool.
const envPrefix = "MIRRORTEX"

type commandLineFlag struct {
	name, shorthand, defaultValue, usage string
	isBool, isSlice                      bool
}

var (
	configFlag = commandLineFlag{
		name:      "config",
		shorthand: "c",
		usage:     "Starlark config file (default is ./mirrortex.star)",
	}
	debugFlag = commandLineFlag{
		name:   "debug",
		usage:  "enable debug logging",
		isBool: true,
	}
	logFormatFlag = commandLineFlag{
		name:         "log-format",
		defaultValue: "console",
		usage:        "log format: console or json",
	}
	rootFlag = commandLineFlag{
		name:      "root",
		shorthand: "r",
		usage:     "source tree to build (default is the config file's directory)",
	}
	outputFlag = commandLineFlag{
		name:      "output",
		shorthand: "o",
		usage:     "artifact tree (default is <root>/output)",
	}
	toolFlag = commandLineFlag{
		name:      "tool",
		shorthand: "t",
		usage:     "compiler to invoke (default is xelatex)",
	}
	timeoutFlag = commandLineFlag{
		name:  "timeout",
		usage: "per file compile timeout, e.g. 2m (default is no limit)",
	}
	includeFlag = commandLineFlag{
		name:  "include",
		usage: "doublestar pattern selecting sources (default is **/*.tex)",
	}
	excludeFlag = commandLineFlag{
		name:    "exclude",
		usage:   "doublestar patterns of files or directories to skip",
		isSlice: true,
	}
	forceFlag = commandLineFlag{
		name:      "force",
		shorthand: "f",
		usage:     "rebuild every file regardless of timestamps",
		isBool:    true,
	}
	dryRunFlag = commandLineFlag{
		name:   "dry-run",
		usage:  "report what would happen without changing anything",
		isBool: true,
	}
	uiFlag = commandLineFlag{
		name:   "ui",
		usage:  "show an interactive status view while building",
		isBool: true,
	}
)

var globalFlags = []commandLineFlag{configFlag, debugFlag, logFormatFlag}

func initFlags(flags *pflag.FlagSet, addFlags ...commandLineFlag) {
	for _, flag := range addFlags {
		switch {
		case flag.isBool:
			flags.BoolP(flag.name, flag.shorthand, flag.defaultValue == "true", flag.usage)
		case flag.isSlice:
			flags.StringSliceP(flag.name, flag.shorthand, nil, flag.usage)
		default:
			flags.StringP(flag.name, flag.shorthand, flag.defaultValue, flag.usage)
		}
	}
}

// newViper binds flags and their MIRRORTEX_ environment variables into a
// fresh viper instance. A flag set on the command line wins over the
// environment.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	flags.VisitAll(func(flag *pflag.Flag) {
		if bindErr != nil {
			return
		}
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			bindErr = errors.Wrapf(err, "failed to bind flag %s", flag.Name)
		}
	})
	return v, bindErr
}
