// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package keys

import (
	"github.com/grailbio/decryptfilter/errors"
	"gopkg.in/yaml.v3"
)

const malformedDocument = "Key file is in incorrect format or not enable to be retrieved"

// parseDocument reads a key document: a flat YAML mapping that has a
// key_hex entry and optionally an iv_hex entry. Scalars are taken
// verbatim, so hex strings made of digits only are not reinterpreted
// as numbers. Other entries are ignored.
func parseDocument(b []byte) (keyHex, ivHex string, err error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return "", "", errors.E(errors.Config, malformedDocument, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode {
		return "", "", errors.E(errors.Config, malformedDocument)
	}
	m := doc.Content[0]
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return "", "", errors.E(errors.Config, malformedDocument)
		}
		if k.Value != "key_hex" && k.Value != "iv_hex" {
			continue
		}
		if v.Kind != yaml.ScalarNode {
			return "", "", errors.E(errors.Config, malformedDocument, "entry "+k.Value+" is not a string")
		}
		if v.ShortTag() == "!!null" {
			continue
		}
		if k.Value == "key_hex" {
			keyHex = v.Value
		} else {
			ivHex = v.Value
		}
	}
	return keyHex, ivHex, nil
}
