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

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seqtools/counter/kmer"
)

func newDumpCmd() *cobra.Command {
	var (
		decode   bool
		minCount uint32
	)
	cmd := &cobra.Command{
		Use:   "dump [flags] <dump-file>",
		Short: "print a binary dump as text",
		Long: `dump prints one "<key> <count>" line per counted k-mer, in unspecified
order. With --decode the key is printed as its DNA word instead of the
raw integer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tb, h, err := loadDump(args[0])
			if err != nil {
				return err
			}
			defer tb.Close()

			w := bufio.NewWriter(cmd.OutOrStdout())
			defer w.Flush()

			it := tb.Iter()
			defer it.Close()
			for it.Next() {
				if it.Val < minCount {
					continue
				}
				if decode {
					if _, err := fmt.Fprintf(w, "%s %d\n", kmer.Decode(it.Key, h.k()), it.Val); err != nil {
						return err
					}
					continue
				}
				if _, err := fmt.Fprintf(w, "%d %d\n", it.Key, it.Val); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&decode, "decode", false, "print k-mers as DNA words")
	cmd.Flags().Uint32Var(&minCount, "min-count", 0, "skip k-mers counted fewer times")
	return cmd
}
