// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package tsv reads and writes typed records as tab-separated text.
//
// Each line holds one record; fields are separated by tabs. Within a
// field, backslash, tab, newline and carriage return are escaped as
// \\, \t, \n and \r, and a field consisting of exactly \N is null.
// Booleans are written as true/false, longs in decimal, doubles in the
// shortest representation that round-trips, timestamps in RFC 3339
// with nanoseconds, and JSON values as their (single-line) text.
//
// A file may start with a schema header line whose fields have the
// form name:type, for example
//
//	id:long	email:string	created:timestamp
//
// which ReadSchemaHeader parses and RecordWriter.WriteHeader produces.
package tsv
