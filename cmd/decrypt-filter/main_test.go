// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/decryptfilter/compress"
	"github.com/grailbio/decryptfilter/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"v.io/x/lib/cmdline"
)

const config = `
algorithm: AES-256-CBC
output_encoding: base64
key_hex: 098F6BCD4621D373CADE4E832627B4F60A9172716AE6428409885B8B829CCB05
iv_hex: C9DD4BB33B827EB1FBA1B16A0074D460
column_names: [email]
`

func writeFile(t *testing.T, path string, data string) {
	f, err := os.Create(path)
	assert.NoError(t, err)
	w, err := compress.NewWriterPath(f, path)
	assert.NoError(t, err)
	_, err = w.Write([]byte(data))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, f.Close())
}

func readFile(t *testing.T, path string) string {
	f, err := os.Open(path)
	assert.NoError(t, err)
	defer f.Close()
	r, err := compress.NewReaderPath(f, path)
	assert.NoError(t, err)
	b, err := ioutil.ReadAll(r)
	assert.NoError(t, err)
	assert.NoError(t, r.Close())
	return string(b)
}

func newEnv() (*cmdline.Env, *bytes.Buffer) {
	var stdout bytes.Buffer
	return &cmdline.Env{Stdout: &stdout, Stderr: &bytes.Buffer{}}, &stdout
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yml")
	writeFile(t, cfgPath, config)

	var in, want strings.Builder
	in.WriteString("id:long\temail:string\tnote:string\n")
	want.WriteString("id:long\temail:string\tnote:string\n")
	for i := 0; i < 11; i++ {
		fmt.Fprintf(&in, "%d\tgUzzC+nJSBLbPTAzJlbbMA==\tgUzzC+nJSBLbPTAzJlbbMA==\n", i)
		fmt.Fprintf(&want, "%d\tsecret\tgUzzC+nJSBLbPTAzJlbbMA==\n", i)
	}
	in.WriteString("11\t\\N\tlast\n")
	want.WriteString("11\t\\N\tlast\n")
	inPath := filepath.Join(dir, "in.tsv.gz")
	writeFile(t, inPath, in.String())

	parallelismFlag, batchSizeFlag = 3, 2
	for _, outName := range []string{"out.tsv", "out.tsv.zst", "out.tsv.gz"} {
		outPath := filepath.Join(dir, outName)
		env, _ := newEnv()
		assert.NoError(t, runDecrypt(env, []string{cfgPath, inPath, outPath}))
		expect.EQ(t, readFile(t, outPath), want.String())
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yml")
	writeFile(t, cfgPath, config)
	parallelismFlag, batchSizeFlag = 2, 4

	env, _ := newEnv()
	err := runDecrypt(env, []string{cfgPath, filepath.Join(dir, "missing.tsv"), filepath.Join(dir, "out.tsv")})
	expect.True(t, errors.Is(errors.NotExist, err), err)

	noColumn := filepath.Join(dir, "nocolumn.tsv")
	writeFile(t, noColumn, "id:long\n1\n")
	err = runDecrypt(env, []string{cfgPath, noColumn, filepath.Join(dir, "out.tsv")})
	expect.True(t, errors.Is(errors.Config, err), err)
	expect.HasSubstr(t, err.Error(), "Column 'email' is not found")

	badData := filepath.Join(dir, "bad.tsv")
	writeFile(t, badData, "email:string\ngUzzC+nJSBLbPTAzJlbbMA==\n@@@@\n")
	err = runDecrypt(env, []string{cfgPath, badData, filepath.Join(dir, "out.tsv")})
	expect.True(t, errors.Is(errors.Data, err), err)
	expect.HasSubstr(t, err.Error(), "column 'email'")

	expect.NotNil(t, runDecrypt(env, []string{cfgPath}))
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yml")
	writeFile(t, cfgPath, config)

	schemaFlag = ""
	env, stdout := newEnv()
	assert.NoError(t, runValidate(env, []string{cfgPath}))
	expect.EQ(t, stdout.String(), "ok: AES-256-CBC, base64 encoding, columns [email]\n")
	expect.False(t, strings.Contains(stdout.String(), "098F6BCD"))

	schemaFlag = "id:long,email:string"
	env, _ = newEnv()
	assert.NoError(t, runValidate(env, []string{cfgPath}))

	schemaFlag = "id:long"
	env, _ = newEnv()
	err := runValidate(env, []string{cfgPath})
	expect.True(t, errors.Is(errors.Config, err), err)

	schemaFlag = "id:blob"
	err = runValidate(env, []string{cfgPath})
	expect.True(t, errors.Is(errors.Config, err), err)
	schemaFlag = ""

	bad := filepath.Join(dir, "bad.yml")
	writeFile(t, bad, "algorithm: ABC\ncolumn_names: [email]\nkey_hex: \"00\"\n")
	err = runValidate(env, []string{bad})
	expect.True(t, errors.Is(errors.Config, err), err)
	expect.HasSubstr(t, err.Error(), "Unsupported algorithm 'ABC'")
}
