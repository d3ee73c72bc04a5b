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

// Package cmd wires the cobra command tree: inspect and serve subcommands
// over an offline capture file, grounded on the teacher's agent/log/watch
// subcommand layout but built around "load a file" rather than "open a
// NIC" (there is no live-capture subcommand: this tool never touches an
// interface).
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/packwright/packwright/common"
	"github.com/packwright/packwright/internal/demux"
)

// version/gitHash/buildTime can be stamped at build time via -ldflags -X;
// they default to "dev"/"none"/"unknown" for a plain `go build`.
var (
	version   = "dev"
	gitHash   = "none"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "packwright",
	Short: "Offline packet capture dissector and flow reconstruction engine",
}

// Execute runs the root command; main.go's only job besides this is
// GOMAXPROCS tuning.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildInfo() common.BuildInfo {
	return common.BuildInfo{Version: version, GitHash: gitHash, Time: buildTime}
}

// exitCodeFor maps a load error to the exit codes spec.md §6 defines for
// the CLI surface: 0 parsed to completion, 2 unsupported file type, 3
// truncated file, 1 anything else.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, demux.ErrUnsupportedFileType):
		return 2
	case errors.Is(err, demux.ErrTruncated):
		return 3
	default:
		return 1
	}
}

func init() {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("packwright %s (%s) built %s\n", version, gitHash, buildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)
}
