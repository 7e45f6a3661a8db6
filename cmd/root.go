/*
Copyright © 2020 hit.zhangjie@gmail.com

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hitzhangjie/dwarfmap/pkg/symbol"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dwarfmap",
	Short: "map addresses of a relocated ELF executable to source lines",
	Long: `dwarfmap decodes the ELF sections, symbols and DWARF line programs of a
cross compiled executable and maps them onto the load addresses the
target loader placed every section at.

The load offsets are one per section, in section header table order,
starting with the null section:

  dwarfmap lookup --offsets 0,0x21000,0x34000 a.out 0x21004`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("debug") {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dwarfmap.yaml)")
	rootCmd.PersistentFlags().StringSlice("offsets", nil, "load address of every section, in section header order")
	rootCmd.PersistentFlags().String("basedir", "", "directory source paths are resolved against")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	for _, key := range []string{"offsets", "basedir", "debug"} {
		viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(key))
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".dwarfmap")
	}

	viper.SetEnvPrefix("dwarfmap")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	}
}

// parseOffsets parses load offsets given as decimal or 0x prefixed hex
// numbers, as separate values or comma separated.
func parseOffsets(vals []string) ([]uint64, error) {
	var offsets []uint64
	for _, val := range vals {
		for _, s := range strings.Split(val, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			v, err := strconv.ParseUint(s, 0, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid offset %q", s)
			}
			offsets = append(offsets, v)
		}
	}
	return offsets, nil
}

// loadSourceMap builds the source map of the executable at path with the
// configured offsets and base directory.
func loadSourceMap(path string) (*symbol.SourceMap, error) {
	offsets, err := parseOffsets(viper.GetStringSlice("offsets"))
	if err != nil {
		return nil, err
	}
	sm, err := symbol.AnalyzeFile(path, offsets, viper.GetString("basedir"))
	if err != nil {
		return nil, errors.WithMessagef(err, "analyze %s", path)
	}
	return sm, nil
}
