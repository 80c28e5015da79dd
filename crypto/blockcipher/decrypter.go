// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package blockcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/grailbio/decryptfilter/errors"
)

// IVLen is the length in bytes of the initialization vector used by
// CBC algorithms.
const IVLen = aes.BlockSize

// A Decrypter decrypts single ciphertexts under one algorithm, key and
// IV. Decrypt may be called concurrently, but callers that process
// records in parallel are expected to create one Decrypter per worker.
type Decrypter struct {
	alg   Algorithm
	block cipher.Block
	iv    []byte
}

// New validates key and iv against alg and returns a Decrypter. Errors
// are configuration errors: New is called while a job is validated,
// before any ciphertext is seen. An iv passed to an algorithm that
// does not use one is ignored.
func New(alg Algorithm, key, iv []byte) (*Decrypter, error) {
	if !alg.valid() {
		return nil, errors.E(errors.Config, fmt.Sprintf("invalid algorithm %d", int(alg)))
	}
	if got, want := len(key), alg.KeyLen(); got != want {
		return nil, errors.E(errors.Config, fmt.Sprintf("Algorithm '%s' requires a %d-bit key, but key_hex decodes to %d bits", alg, want*8, got*8))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.E(errors.Config, fmt.Sprintf("Algorithm '%s'", alg), err)
	}
	d := &Decrypter{alg: alg, block: block}
	if alg.RequiresIV() {
		if len(iv) == 0 {
			return nil, errors.E(errors.Config, fmt.Sprintf("Algorithm '%s' requires initialization vector. Please generate one and set it to iv_hex option.", alg))
		}
		if len(iv) != IVLen {
			return nil, errors.E(errors.Config, fmt.Sprintf("Algorithm '%s' requires a %d-bit initialization vector, but iv_hex decodes to %d bits", alg, IVLen*8, len(iv)*8))
		}
		d.iv = append([]byte(nil), iv...)
	}
	return d, nil
}

// Algorithm returns the decrypter's algorithm.
func (d *Decrypter) Algorithm() Algorithm { return d.alg }

// Decrypt decrypts ciphertext and removes its PKCS#7 padding. The
// returned slice does not alias ciphertext. Malformed input is
// reported as a Data error. An empty ciphertext decrypts to an empty
// plaintext.
func (d *Decrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return []byte{}, nil
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.E(errors.Data, fmt.Sprintf("%s: ciphertext length %d is not a multiple of the block size %d", d.alg, len(ciphertext), aes.BlockSize))
	}
	plaintext := make([]byte, len(ciphertext))
	switch d.alg.Mode() {
	case CBC:
		// BlockModes carry chaining state; create one per call.
		cipher.NewCBCDecrypter(d.block, d.iv).CryptBlocks(plaintext, ciphertext)
	case ECB:
		for i := 0; i < len(ciphertext); i += aes.BlockSize {
			d.block.Decrypt(plaintext[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
		}
	}
	return unpad(d.alg, plaintext)
}

func unpad(alg Algorithm, b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errors.E(errors.Data, fmt.Sprintf("%s: bad padding (wrong key or corrupted ciphertext)", alg))
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.E(errors.Data, fmt.Sprintf("%s: bad padding (wrong key or corrupted ciphertext)", alg))
		}
	}
	return b[:len(b)-n], nil
}
