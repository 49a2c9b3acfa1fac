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
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/seqtools/counter/kmer"
)

func newExportCmd() *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "export [flags] <dump-file>",
		Short: "export a binary dump into a SQLite database",
		Long: `export writes every counted k-mer into a SQLite table
kmers(kmer TEXT PRIMARY KEY, count INTEGER), decoding keys to DNA
words.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tb, h, err := loadDump(args[0])
			if err != nil {
				return err
			}
			defer tb.Close()

			database, err := sql.Open("sqlite3", db)
			if err != nil {
				return err
			}
			defer database.Close()

			if _, err := database.Exec(
				`CREATE TABLE IF NOT EXISTS kmers (kmer TEXT PRIMARY KEY, count INTEGER)`); err != nil {
				return err
			}

			tx, err := database.Begin()
			if err != nil {
				return err
			}
			stmt, err := tx.Prepare(`INSERT OR REPLACE INTO kmers (kmer, count) VALUES (?, ?)`)
			if err != nil {
				tx.Rollback()
				return err
			}

			it := tb.Iter()
			for it.Next() {
				if _, err := stmt.Exec(kmer.Decode(it.Key, h.k()), int64(it.Val)); err != nil {
					it.Close()
					stmt.Close()
					tx.Rollback()
					return err
				}
			}
			it.Close()
			stmt.Close()
			return tx.Commit()
		},
	}
	cmd.Flags().StringVar(&db, "db", "kmers.db", "SQLite database path")
	return cmd
}
