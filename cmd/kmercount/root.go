// Copyright 2025 The Seqtools Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import "github.com/spf13/cobra"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kmercount",
		Short: "kmercount counts k-mers in DNA sequences",
		Long: `kmercount streams FASTA or plain sequence files through a concurrent
counting hash table, one worker goroutine per thread, and writes the
counts as a binary dump that the dump and export subcommands consume.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newCountCmd(),
		newDumpCmd(),
		newExportCmd(),
	)
	return cmd
}
