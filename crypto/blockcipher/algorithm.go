// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package blockcipher provides the catalog of supported AES algorithms
// and single-shot decryption of PKCS#7 padded ciphertext under them.
package blockcipher

import (
	"fmt"
	"strings"

	"github.com/grailbio/decryptfilter/errors"
)

// Mode is a block cipher mode of operation.
type Mode int

const (
	// CBC chains blocks through an initialization vector.
	CBC Mode = iota + 1
	// ECB decrypts every block independently.
	ECB
)

func (m Mode) String() string {
	switch m {
	case CBC:
		return "CBC"
	case ECB:
		return "ECB"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Algorithm is one of the supported cipher configurations. The zero
// Algorithm is invalid.
type Algorithm int

const (
	AES256CBC Algorithm = iota + 1
	AES192CBC
	AES128CBC
	AES256ECB
	AES192ECB
	AES128ECB
	maxAlgorithm
)

type algorithmInfo struct {
	mode    Mode
	keySpec string
	keyBits int
	// aliases are accepted on input. The last alias is the
	// canonical name.
	aliases []string
}

var algorithms = [...]algorithmInfo{
	AES256CBC: {CBC, "AES", 256, []string{"AES", "AES-256", "AES-256-CBC"}},
	AES192CBC: {CBC, "AES", 192, []string{"AES-192", "AES-192-CBC"}},
	AES128CBC: {CBC, "AES", 128, []string{"AES-128", "AES-128-CBC"}},
	AES256ECB: {ECB, "AES", 256, []string{"AES-256-ECB"}},
	AES192ECB: {ECB, "AES", 192, []string{"AES-192-ECB"}},
	AES128ECB: {ECB, "AES", 128, []string{"AES-128-ECB"}},
}

var byAlias = func() map[string]Algorithm {
	m := make(map[string]Algorithm)
	for alg := AES256CBC; alg < maxAlgorithm; alg++ {
		for _, alias := range algorithms[alg].aliases {
			if _, ok := m[alias]; ok {
				panic("blockcipher: duplicate alias " + alias)
			}
			m[alias] = alg
		}
	}
	return m
}()

// Algorithms returns every supported algorithm in catalog order.
func Algorithms() []Algorithm {
	algs := make([]Algorithm, 0, int(maxAlgorithm)-1)
	for alg := AES256CBC; alg < maxAlgorithm; alg++ {
		algs = append(algs, alg)
	}
	return algs
}

// Names returns the canonical names of every supported algorithm in
// catalog order.
func Names() []string {
	var names []string
	for _, alg := range Algorithms() {
		names = append(names, alg.String())
	}
	return names
}

// Lookup returns the algorithm that has name as one of its aliases.
// Matching is exact and case-sensitive. An unknown name is a
// configuration error that lists the supported algorithms.
func Lookup(name string) (Algorithm, error) {
	if alg, ok := byAlias[name]; ok {
		return alg, nil
	}
	return 0, errors.E(errors.Config, fmt.Sprintf("Unsupported algorithm '%s'. Supported algorithms are %s",
		name, strings.Join(Names(), ", ")))
}

func (a Algorithm) valid() bool {
	return a >= AES256CBC && a < maxAlgorithm
}

func (a Algorithm) info() algorithmInfo {
	if !a.valid() {
		panic(fmt.Sprintf("blockcipher: invalid algorithm %d", int(a)))
	}
	return algorithms[a]
}

// String returns the canonical name of the algorithm, for example
// "AES-256-CBC".
func (a Algorithm) String() string {
	if !a.valid() {
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
	aliases := algorithms[a].aliases
	return aliases[len(aliases)-1]
}

// Aliases returns the names accepted by Lookup for a.
func (a Algorithm) Aliases() []string {
	return append([]string(nil), a.info().aliases...)
}

// Mode returns the algorithm's mode of operation.
func (a Algorithm) Mode() Mode { return a.info().mode }

// KeySpec returns the name of the underlying block cipher.
func (a Algorithm) KeySpec() string { return a.info().keySpec }

// KeyBits returns the key length in bits.
func (a Algorithm) KeyBits() int { return a.info().keyBits }

// KeyLen returns the key length in bytes.
func (a Algorithm) KeyLen() int { return a.info().keyBits / 8 }

// RequiresIV tells whether the algorithm needs an initialization
// vector.
func (a Algorithm) RequiresIV() bool { return a.info().mode == CBC }

// Transformation returns the conventional cipher/mode/padding
// descriptor of the algorithm, for example "AES/CBC/PKCS5Padding".
func (a Algorithm) Transformation() string {
	info := a.info()
	return info.keySpec + "/" + info.mode.String() + "/PKCS5Padding"
}
