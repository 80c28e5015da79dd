// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package keys

import (
	"encoding/hex"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/grailbio/decryptfilter/crypto/blockcipher"
	"github.com/grailbio/decryptfilter/errors"
)

// Material is a validated key, plus an IV for algorithms that use one.
// The bytes are kept sealed in a memguard enclave and are only
// unsealed while a Decrypter is constructed. Material is safe for
// concurrent use.
type Material struct {
	alg    blockcipher.Algorithm
	keyLen int
	hasIV  bool

	mu      sync.Mutex
	enclave *memguard.Enclave
}

// NewMaterial validates key and iv against alg and seals them. iv is
// dropped if alg does not use one. NewMaterial does not modify its
// arguments; callers should wipe them.
func NewMaterial(alg blockcipher.Algorithm, key, iv []byte) (*Material, error) {
	if _, err := blockcipher.New(alg, key, iv); err != nil {
		return nil, err
	}
	m := &Material{alg: alg, keyLen: len(key), hasIV: alg.RequiresIV()}
	buf := make([]byte, 0, len(key)+len(iv))
	buf = append(buf, key...)
	if m.hasIV {
		buf = append(buf, iv...)
	}
	// NewEnclave wipes buf.
	m.enclave = memguard.NewEnclave(buf)
	return m, nil
}

// Algorithm returns the algorithm the material was validated for.
func (m *Material) Algorithm() blockcipher.Algorithm { return m.alg }

// HasIV tells whether the material includes an IV.
func (m *Material) HasIV() bool { return m.hasIV }

func (m *Material) open(fn func(key, iv []byte) error) error {
	m.mu.Lock()
	enclave := m.enclave
	m.mu.Unlock()
	if enclave == nil {
		return errors.E(errors.Invalid, "key material was destroyed")
	}
	buf, err := enclave.Open()
	if err != nil {
		return errors.E(errors.Invalid, "unsealing key material", err)
	}
	defer buf.Destroy()
	b := buf.Bytes()
	var iv []byte
	if m.hasIV {
		iv = b[m.keyLen:]
	}
	return fn(b[:m.keyLen], iv)
}

// Decrypter returns a new Decrypter for the material. Each worker
// should obtain its own.
func (m *Material) Decrypter() (*blockcipher.Decrypter, error) {
	var d *blockcipher.Decrypter
	err := m.open(func(key, iv []byte) (err error) {
		d, err = blockcipher.New(m.alg, key, iv)
		return
	})
	return d, err
}

// Hex returns the material as uppercase hex strings, in the form
// accepted by Inline. ivHex is empty if the material has no IV.
func (m *Material) Hex() (keyHex, ivHex string, err error) {
	err = m.open(func(key, iv []byte) error {
		keyHex = strings.ToUpper(hex.EncodeToString(key))
		if iv != nil {
			ivHex = strings.ToUpper(hex.EncodeToString(iv))
		}
		return nil
	})
	return
}

// Destroy drops the sealed material. Subsequent calls to Decrypter
// fail. Destroy is idempotent.
func (m *Material) Destroy() {
	m.mu.Lock()
	m.enclave = nil
	m.mu.Unlock()
}
