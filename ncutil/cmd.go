/*
Copyright © 2018 the InMAP authors.
This file is part of InMAP.

InMAP is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

InMAP is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with InMAP.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package ncutil is the command-line interface to ncfile.
package ncutil

import (
	"context"
	"fmt"
	"log"

	"github.com/lnashier/viper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/ncfile"
	"github.com/spatialmodel/ncfile/cdfengine"
	"github.com/spf13/afero"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to ncfile.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "format",
			usage: `
              format specifies the dataset format: classic, classic64,
              nc4 or nc4classic. This build writes only classic and
              classic64 datasets.`,
			shorthand:  "f",
			defaultVal: "classic",
			flagsets:   []*pflag.FlagSet{createCmd.Flags(), infoCmd.Flags(), copyCmd.Flags()},
		},
		{
			name: "mode",
			usage: `
              mode specifies how a new dataset is created: replace
              overwrites an existing dataset and newfile fails if one
              exists.`,
			defaultVal: "newfile",
			flagsets:   []*pflag.FlagSet{createCmd.Flags()},
		},
		{
			name: "memory",
			usage: `
              memory specifies whether to build the dataset in memory and
              write it out in one piece when it is closed. Datasets with
              a blob URL (e.g., gs://bucket/file.nc) are always built
              in memory.`,
			shorthand:  "m",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{createCmd.Flags()},
		},
		{
			name: "locked",
			usage: `
              locked specifies whether an in-memory dataset is limited to
              a fixed buffer of initialsize bytes.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{createCmd.Flags()},
		},
		{
			name: "initialsize",
			usage: `
              initialsize specifies the initial size in bytes of an
              in-memory dataset buffer.`,
			defaultVal: 4096,
			flagsets:   []*pflag.FlagSet{createCmd.Flags()},
		},
		{
			name: "template",
			usage: `
              template specifies the location of a TOML file describing
              the dimensions, variables and attributes of a new dataset.`,
			shorthand:  "t",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{createCmd.Flags()},
		},
		{
			name: "loglevel",
			usage: `
              loglevel specifies the level of engine log messages:
              panic, fatal, error, warning, info, debug or trace.`,
			defaultVal: "warning",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "metrics",
			usage: `
              metrics specifies a file to write engine metrics to, in the
              Prometheus text format, when a command finishes.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("NCFILE")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(createCmd)
	Root.AddCommand(infoCmd)
	Root.AddCommand(copyCmd)
}

// registry collects engine metrics when the metrics option is set.
var registry *prometheus.Registry

// setConfig finds and reads in the configuration file, if there is one,
// and sets up logging and metrics.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("ncfile: problem reading configuration file: %v", err)
		}
	}
	level, err := logrus.ParseLevel(Cfg.GetString("loglevel"))
	if err != nil {
		return fmt.Errorf("ncfile: %v", err)
	}
	logrus.SetLevel(level)
	registry = nil
	if Cfg.GetString("metrics") != "" {
		registry = prometheus.NewRegistry()
	}
	return nil
}

// writeMetrics writes the collected metrics, if any, to the metrics file.
func writeMetrics() error {
	if registry == nil {
		return nil
	}
	path := Cfg.GetString("metrics")
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("ncfile: writing metrics: %v", err)
	}
	return nil
}

// newEngine returns the storage engine used by the commands.
func newEngine() *cdfengine.Engine {
	o := cdfengine.Options{
		Fs:  afero.NewOsFs(),
		Log: logrus.StandardLogger(),
	}
	if registry != nil {
		o.Registerer = registry
	}
	return cdfengine.New(o)
}

func format() (ncfile.Format, error) {
	return ncfile.ParseFormat(Cfg.GetString("format"))
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "ncfile",
	Short: "Create, inspect and copy netCDF datasets.",
	Long: `ncfile creates, inspects and copies classic and 64-bit offset netCDF
datasets on disk, in memory, and in blob storage.

Datasets are given as local paths or as blob URLs in the format
'provider://bucket/key', where provider is file, gs or s3.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'NCFILE_var' where 'var' is the
name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag:  true,
	PersistentPreRunE:  func(*cobra.Command, []string) error { return setConfig() },
	PersistentPostRunE: func(*cobra.Command, []string) error { return writeMetrics() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of ncfile.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("ncfile v%s\n", ncfile.Version)
	},
	DisableAutoGenTag: true,
}

var createCmd = &cobra.Command{
	Use:   "create PATH",
	Short: "Create a dataset",
	Long: `create creates a new dataset at PATH, optionally laid out by the
TOML file given by --template.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := ncfile.ParseMode(Cfg.GetString("mode"))
		if err != nil {
			return err
		}
		if mode != ncfile.Replace && mode != ncfile.NewFile {
			return fmt.Errorf("ncfile: create mode must be replace or newfile, not %v", mode)
		}
		f, err := format()
		if err != nil {
			return err
		}
		size, err := cast.ToIntE(Cfg.Get("initialsize"))
		if err != nil {
			return fmt.Errorf("ncfile: initialsize: %v", err)
		}
		var t *Template
		if path := Cfg.GetString("template"); path != "" {
			if t, err = ReadTemplate(path); err != nil {
				return err
			}
		}
		o := CreateOptions{
			Mode:        mode,
			Format:      f,
			Memory:      Cfg.GetBool("memory"),
			Locked:      Cfg.GetBool("locked"),
			InitialSize: size,
			Template:    t,
		}
		if err := CreateDataset(context.Background(), newEngine(), args[0], o); err != nil {
			return err
		}
		log.Printf("ncfile: created %s", args[0])
		return nil
	},
	DisableAutoGenTag: true,
}

var infoCmd = &cobra.Command{
	Use:   "info PATH",
	Short: "Describe a dataset",
	Long: `info prints the format, dimensions, variables and attributes of the
dataset at PATH, followed by a fingerprint of that description.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := format()
		if err != nil {
			return err
		}
		sum, err := Describe(context.Background(), newEngine(), args[0], f)
		if err != nil {
			return err
		}
		PrintSummary(cmd.OutOrStdout(), args[0], sum)
		return nil
	},
	DisableAutoGenTag: true,
}

var copyCmd = &cobra.Command{
	Use:   "copy SRC DST",
	Short: "Copy a dataset",
	Long: `copy loads the dataset at SRC into memory and writes it to DST.
Either may be a local path or a blob URL.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := format()
		if err != nil {
			return err
		}
		if err := Copy(context.Background(), newEngine(), args[0], args[1], f); err != nil {
			return err
		}
		log.Printf("ncfile: copied %s to %s", args[0], args[1])
		return nil
	},
	DisableAutoGenTag: true,
}
