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
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	"github.com/seqtools/counter"
	"github.com/seqtools/counter/kmer"
)

type countFlags struct {
	k          int
	threads    int
	size       uint64
	maxReprobe uint32
	canonical  bool
	out        string
	stats      bool
}

func newCountCmd() *cobra.Command {
	var flags countFlags
	cmd := &cobra.Command{
		Use:   "count [flags] <file>...",
		Short: "count k-mers in FASTA or plain sequence files",
		Long: `count reads the given sequence files ("-" for stdin), counts every
k-mer with one worker goroutine per thread, and writes a binary dump of
the table. FASTA headers separate records; k-mers never span records or
invalid bases.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd, flags, args)
		},
	}
	cmd.Flags().IntVarP(&flags.k, "kmer", "k", 25, "k-mer length")
	cmd.Flags().IntVarP(&flags.threads, "threads", "t", runtime.NumCPU(), "worker goroutines")
	cmd.Flags().Uint64VarP(&flags.size, "size", "s", 1<<20, "initial table slots")
	cmd.Flags().Uint32Var(&flags.maxReprobe, "max-reprobe", 64, "reprobe limit before resizing")
	cmd.Flags().BoolVar(&flags.canonical, "canonical", true, "count each k-mer and its reverse complement together")
	cmd.Flags().StringVarP(&flags.out, "out", "o", "counts.kmc", "output dump file")
	cmd.Flags().BoolVar(&flags.stats, "stats", false, "report table statistics as JSON on stderr")
	return cmd
}

func runCount(cmd *cobra.Command, flags countFlags, args []string) error {
	if flags.k < 1 || flags.k > kmer.MaxK {
		return fmt.Errorf("k must be in [1,%d]", kmer.MaxK)
	}
	if flags.threads < 1 {
		flags.threads = 1
	}

	tb := counter.New[uint32](kmer.KeyBits(flags.k), flags.size, flags.threads,
		counter.WithMaxReprobe[uint32](flags.maxReprobe))
	defer tb.Close()

	handles := make([]*counter.Handle[uint32], flags.threads)
	for i := range handles {
		handles[i] = tb.NewHandle()
	}

	records := make(chan []byte, flags.threads)
	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *counter.Handle[uint32]) {
			defer wg.Done()
			s := kmer.NewScanner(flags.k, flags.canonical)
			for rec := range records {
				s.Reset(rec)
				for {
					key, ok := s.Next()
					if !ok {
						break
					}
					h.Inc(key)
				}
			}
			h.Close()
		}(h)
	}

	var readErr error
	for _, path := range args {
		if err := feedRecords(path, records); err != nil {
			readErr = err
			break
		}
	}
	close(records)
	wg.Wait()
	if readErr != nil {
		return readErr
	}

	out, err := os.Create(flags.out)
	if err != nil {
		return err
	}
	defer out.Close()
	bw := bufio.NewWriter(out)
	if err := writeHeader(bw, dumpHeader{
		keyBits:   kmer.KeyBits(flags.k),
		valueSize: 4,
		size:      tb.Size(),
	}); err != nil {
		return err
	}
	if _, err := tb.WriteTo(bw); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	if flags.stats {
		js, err := sonnet.Marshal(tb.Stats())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", js)
	}
	return nil
}

// feedRecords splits path into sequence records and sends them on
// records. FASTA header lines start a new record; in plain input every
// line is its own record.
func feedRecords(path string, records chan<- []byte) error {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<26)

	var rec []byte
	flush := func() {
		if len(rec) > 0 {
			records <- rec
			rec = nil
		}
	}
	fasta := false
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) > 0 && line[0] == '>' {
			flush()
			fasta = true
			continue
		}
		if fasta {
			// Record sequences may span lines; keep accumulating so
			// k-mers cross the breaks.
			rec = append(rec, line...)
			continue
		}
		records <- append([]byte(nil), line...)
	}
	flush()
	return sc.Err()
}
