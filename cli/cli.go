// Copyright 2016 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli implements the commandline interface for motenet.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/metal-stack/motenet/motenet"
)

// CLI runs the motenet commandline.
func CLI() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}

// This represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "motenet",
	Short: "Send and receive Active Messages",
	Long: `motenet talks to a mote network through a serial forwarder, a serial
line or straight to IP reachable motes.

The connection is given as the first argument or through the MOTECOM
environment variable:

  server@localhost:9002       serial forwarder, "sf@" works too
  serial@/dev/ttyUSB0:telosb  serial line, baud rate or platform name
  [fe80::1%eth0]:9001         direct`,
}

var cfgFile string

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().Bool("debug", false, "log resolved addresses and every frame")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		fatalf("Error binding flag: %s", err)
	}
}

func initConfig() {
	if cfgFile != "" { // enable ability to specify config file via flag
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Printf("Error reading configuration file %q: %s\n", viper.ConfigFileUsed(), err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix("motenet")
	viper.AutomaticEnv() // read in environment variables that match
	if err := viper.BindEnv("motecom", "MOTENET_MOTECOM", motenet.EnvVar); err != nil {
		fatalf("Error binding environment: %s", err)
	}
}

func newLogger() *zap.SugaredLogger {
	var (
		log *zap.Logger
		err error
	)
	if viper.GetBool("debug") {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		fatalf("unable to create logger: %s", err)
	}
	return log.Sugar()
}

// newNet returns a Net whose MOTECOM fallback also honours the config
// file.
func newNet(log *zap.SugaredLogger) *motenet.Net {
	return &motenet.Net{
		Log:   log,
		Debug: viper.GetBool("debug"),
		Getenv: func(key string) string {
			if key == motenet.EnvVar {
				return viper.GetString("motecom")
			}
			return os.Getenv(key)
		},
	}
}

func fatalf(msg string, args ...interface{}) {
	fmt.Printf(msg+"\n", args...)
	os.Exit(1)
}
