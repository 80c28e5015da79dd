// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package codec decodes the text representations of binary values:
// base64 and hexadecimal.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/grailbio/decryptfilter/errors"
)

// Codec is a binary-to-text encoding. The zero Codec is invalid.
type Codec int

const (
	// Base64 is the standard base64 alphabet of RFC 4648. Trailing
	// padding is optional.
	Base64 Codec = iota + 1
	// Hex is base16. Both letter cases are accepted.
	Hex
	maxCodec
)

var names = [...]string{
	Base64: "base64",
	Hex:    "hex",
}

// Names returns the names of the supported codecs.
func Names() []string {
	return append([]string(nil), names[1:]...)
}

// Lookup returns the codec with the given name. Names are case
// sensitive.
func Lookup(name string) (Codec, error) {
	for c := Base64; c < maxCodec; c++ {
		if names[c] == name {
			return c, nil
		}
	}
	return 0, errors.E(errors.Config, fmt.Sprintf("Unsupported output encoding '%s'. Supported encodings are %s.",
		name, strings.Join(Names(), ", ")))
}

func (c Codec) String() string {
	if c < Base64 || c >= maxCodec {
		return fmt.Sprintf("Codec(%d)", int(c))
	}
	return names[c]
}

// DecodeError describes malformed input to Decode.
type DecodeError struct {
	Codec Codec
	// Offset is the byte offset of the offending character, or of the
	// end of input when Length is set.
	Offset int
	// Char is the offending character when Length is false.
	Char byte
	// Length is set when every character is valid but the input is
	// truncated.
	Length bool
}

func (e *DecodeError) Error() string {
	if e.Length {
		return fmt.Sprintf("invalid %s input length %d", e.Codec, e.Offset)
	}
	return fmt.Sprintf("invalid %s character %q at offset %d", e.Codec, e.Char, e.Offset)
}

// Decode decodes s. Malformed input yields an Invalid error whose
// cause is a *DecodeError.
func (c Codec) Decode(s string) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	switch c {
	case Base64:
		b, err = decodeBase64(s)
	case Hex:
		b, err = decodeHex(s)
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("invalid codec %d", int(c)))
	}
	if err != nil {
		return nil, errors.E(errors.Invalid, err)
	}
	return b, nil
}

func decodeBase64(s string) ([]byte, error) {
	trimmed := strings.TrimRight(s, "=")
	// The standard decoder skips \r and \n; they are rejected here
	// along with every other character outside the alphabet.
	for i := 0; i < len(trimmed); i++ {
		if !isBase64(trimmed[i]) {
			return nil, &DecodeError{Codec: Base64, Offset: i, Char: trimmed[i]}
		}
	}
	b, err := base64.RawStdEncoding.DecodeString(trimmed)
	if err != nil {
		if _, ok := err.(base64.CorruptInputError); !ok {
			return nil, err
		}
		return nil, &DecodeError{Codec: Base64, Offset: len(s), Length: true}
	}
	return b, nil
}

func isBase64(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	}
	return c == '+' || c == '/'
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err == nil {
		return b, nil
	}
	if ib, ok := err.(hex.InvalidByteError); ok {
		return nil, &DecodeError{Codec: Hex, Offset: strings.IndexByte(s, byte(ib)), Char: byte(ib)}
	}
	if err == hex.ErrLength {
		return nil, &DecodeError{Codec: Hex, Offset: len(s), Length: true}
	}
	return nil, err
}
