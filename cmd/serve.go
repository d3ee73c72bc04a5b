// Copyright 2025 The packwright Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/packwright/packwright/internal/engine"
	"github.com/packwright/packwright/internal/rescue"
	"github.com/packwright/packwright/internal/sigs"
	"github.com/packwright/packwright/logger"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve [file]",
	Short: "Load a capture and serve its query API over HTTP",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		defer rescue.HandleCrash()

		conf, _, err := engine.LoadConfig(serveConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", serveConfigPath, err)
			os.Exit(1)
		}

		eng, err := engine.New(args[0], buildInfo())
		if err != nil && eng == nil {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", args[0], err)
			os.Exit(exitCodeFor(err))
		}
		if err != nil {
			logger.Warnf("%s: %v (serving frames parsed before the error)", eng.Path(), err)
		}
		logger.Infof("loaded %s: %d frames", eng.Path(), len(eng.Context().Frames()))

		errCh := make(chan error, 1)
		go func() {
			if err := eng.Serve(conf); err != nil && !errors.Is(err, io.EOF) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		case <-sigs.Terminate():
			logger.Infof("shutting down")
		}
	},
	Example: "# packwright serve capture.pcap --config packwright.yaml",
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "packwright.yaml", "Configuration file path")
	rootCmd.AddCommand(serveCmd)
}
