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
	"os"

	"github.com/spf13/cobra"

	"github.com/packwright/packwright/internal/engine"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Load a pcap/pcap-ng capture and print a summary",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, err := engine.New(args[0], buildInfo())
		if err != nil && eng == nil {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", args[0], err)
			os.Exit(exitCodeFor(err))
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v (showing frames parsed before the error)\n", err)
		}

		ctx := eng.Context()
		meta := ctx.FileMeta()
		tracker := ctx.Tracker()

		fmt.Printf("file:          %s\n", eng.Path())
		fmt.Printf("format:        %s (v%d.%d)\n", meta.Format, meta.VersionMajor, meta.VersionMinor)
		fmt.Printf("frames:        %d\n", len(ctx.Frames()))
		fmt.Printf("conversations: %d\n", len(tracker.Conversations()))
		fmt.Printf("connections:   %d\n", len(tracker.Connections()))
		fmt.Printf("http exchanges: %d\n", len(ctx.HttpConnects()))
		fmt.Printf("dns records:    %d\n", len(ctx.DnsRecords()))
		fmt.Printf("tls conversations: %d\n", len(ctx.TlsConversations()))
		os.Exit(exitCodeFor(err))
	},
	Example: "# packwright inspect capture.pcapng",
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
