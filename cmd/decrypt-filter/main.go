// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Command decrypt-filter decrypts selected columns of a TSV record
// stream. See "decrypt-filter help" for usage.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/grailbio/decryptfilter/cmdutil"
	"github.com/grailbio/decryptfilter/compress"
	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/decryptfilter/filter"
	"github.com/grailbio/decryptfilter/log"
	"github.com/grailbio/decryptfilter/record"
	"github.com/grailbio/decryptfilter/tsv"
	"v.io/x/lib/cmdline"
)

var (
	schemaFlag      string
	parallelismFlag int
	batchSizeFlag   int
)

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:  "decrypt-filter",
		Short: "Decrypts columns of a record stream",
		Long: `
Command decrypt-filter decrypts the columns named by a job configuration.
Configurations are YAML documents, for example:

  algorithm: AES-256-CBC
  output_encoding: base64
  key_type: inline
  key_hex: 098F6BCD4621D373CADE4E832627B4F60A9172716AE6428409885B8B829CCB05
  iv_hex: C9DD4BB33B827EB1FBA1B16A0074D460
  column_names: [email, phone]

With key_type: s3, the key_hex and iv_hex fields are read from the YAML
document at aws_params.bucket/aws_params.full_path instead.
`,
		Children: []*cmdline.Command{
			newCmdValidate(),
			newCmdRun(),
			cmdutil.CreateVersionCommand("version", "decrypt-filter"),
		},
	}
}

func newCmdValidate() *cmdline.Command {
	cmd := &cmdline.Command{
		Runner: cmdutil.RunnerFunc(runValidate),
		Name:   "validate",
		Short:  "Validates a job configuration",
		Long: `
Validate checks a job configuration and resolves its key material,
fetching it from S3 if so configured. Column names are checked against
the schema given by -schema; without it, every configured column is
assumed to be a string column.
`,
		ArgsName: "<config>",
	}
	cmd.Flags.StringVar(&schemaFlag, "schema", "", "Comma-separated input columns of the form name:type.")
	return cmd
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Runner: cmdutil.RunnerFunc(runDecrypt),
		Name:   "run",
		Short:  "Decrypts a TSV file",
		Long: `
Run decrypts the configured columns of a TSV file. The input must start
with a schema header line (name:type fields); the output has the same
header. Files ending in .gz or .zst are compressed accordingly.
`,
		ArgsName: "<config> <input> <output>",
	}
	cmd.Flags.IntVar(&parallelismFlag, "parallelism", runtime.NumCPU(), "Number of decrypting workers.")
	cmd.Flags.IntVar(&batchSizeFlag, "batch-size", 1024, "Number of records per batch.")
	return cmd
}

func parseSchema(s string, names []string) (*record.Schema, error) {
	if s == "" {
		cols := make([]record.Column, 0, len(names))
		seen := make(map[string]bool)
		for _, name := range names {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, record.Column{Name: name, Type: record.String})
			}
		}
		return record.NewSchema(cols...)
	}
	schema, _, err := tsv.ReadSchemaHeader(strings.NewReader(strings.Replace(s, ",", "\t", -1) + "\n"))
	if err != nil {
		return nil, errors.E(errors.Config, "-schema", err)
	}
	return schema, nil
}

func runValidate(env *cmdline.Env, args []string) error {
	if len(args) != 1 {
		return env.UsageErrorf("exactly one argument is required: <config>")
	}
	cfg, err := filter.LoadConfig(args[0])
	if err != nil {
		return err
	}
	schema, err := parseSchema(schemaFlag, cfg.ColumnNames)
	if err != nil {
		return err
	}
	job, err := filter.Validate(context.Background(), cfg, schema, filter.Options{})
	if err != nil {
		return err
	}
	defer job.Close()
	var names []string
	for _, col := range job.Targets().Columns() {
		names = append(names, col.Name)
	}
	fmt.Fprintf(env.Stdout, "ok: %s, %s encoding, columns [%s]\n", job.Algorithm(), job.Codec(), strings.Join(names, ", "))
	return nil
}

func runDecrypt(env *cmdline.Env, args []string) (err error) {
	if len(args) != 3 {
		return env.UsageErrorf("exactly three arguments are required: <config> <input> <output>")
	}
	if batchSizeFlag < 1 {
		return env.UsageErrorf("-batch-size must be positive")
	}
	cfgPath, inPath, outPath := args[0], args[1], args[2]
	cfg, err := filter.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	ctx := context.Background()

	in, err := os.Open(inPath)
	if err != nil {
		return errors.E(inPath, err)
	}
	defer errors.CleanUp(in.Close, &err)
	r, err := compress.NewReaderPath(in, inPath)
	if err != nil {
		return err
	}
	defer errors.CleanUp(r.Close, &err)
	schema, rr, err := tsv.ReadSchemaHeader(r)
	if err != nil {
		return errors.E(inPath, err)
	}

	job, err := filter.Validate(ctx, cfg, schema, filter.Options{})
	if err != nil {
		return err
	}
	defer job.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return errors.E(outPath, err)
	}
	defer errors.CleanUp(out.Close, &err)
	w, err := compress.NewWriterPath(out, outPath)
	if err != nil {
		return err
	}
	defer errors.CleanUp(w.Close, &err)
	n, err := decrypt(ctx, job, rr, w, parallelismFlag, batchSizeFlag)
	if err != nil {
		return errors.E(inPath, err)
	}
	log.Printf("decrypted %d records from %s to %s", n, inPath, outPath)
	return nil
}

// decrypt copies every record of rr to w through job, reading
// parallelism batches at a time.
func decrypt(ctx context.Context, job *filter.Job, rr *tsv.RecordReader, w io.Writer, parallelism, batchSize int) (int, error) {
	tw := tsv.NewRecordWriter(w, job.Schema())
	if err := tw.WriteHeader(); err != nil {
		return 0, err
	}
	var n int
	for done := false; !done; {
		var batches [][]record.Record
		for len(batches) < parallelism {
			batch, err := rr.ReadBatch(batchSize)
			if err == io.EOF {
				done = true
				break
			}
			if err != nil {
				return n, err
			}
			batches = append(batches, batch)
		}
		results, err := filter.RunBatches(ctx, job, batches, parallelism)
		if err != nil {
			return n, err
		}
		for _, batch := range results {
			for _, r := range batch {
				if err := tw.Add(r); err != nil {
					return n, err
				}
				n++
			}
		}
		log.Debug.Printf("decrypted %d records", n)
	}
	return n, tw.Finish()
}

func main() {
	memguard.CatchInterrupt()
	log.AddFlags(flag.CommandLine)
	cmdline.HideGlobalFlagsExcept(regexp.MustCompile(`^log$`))
	env := cmdline.EnvFromOS()
	err := cmdline.ParseAndRun(newCmdRoot(), env, os.Args[1:])
	// SafeExit wipes any key material still held in enclaves.
	memguard.SafeExit(cmdline.ExitCode(err, env.Stderr))
}
