// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package util

import (
	"bytes"
	"encoding/json"
	"io"
)

// UnmarshalJSON parses the JSON encoded data and stores the result in the
// value pointed to by x, decoding numbers as json.Number so manifest
// fields (row counts, version numbers) round-trip without float64
// precision loss.
func UnmarshalJSON(bs []byte, x interface{}) error {
	return NewJSONDecoder(bytes.NewReader(bs)).Decode(x)
}

// NewJSONDecoder returns a new decoder that reads from r, configured to
// decode numbers as json.Number. Every manifest read in the store package
// goes through this so that large fragment/row counts never round-trip
// through a float64.
func NewJSONDecoder(r io.Reader) *json.Decoder {
	d := json.NewDecoder(r)
	d.UseNumber()
	return d
}

// MustUnmarshalJSON parses the JSON encoded data and returns the result.
// Panics on failure; for test purposes only.
func MustUnmarshalJSON(bs []byte) interface{} {
	var x interface{}
	if err := UnmarshalJSON(bs, &x); err != nil {
		panic(err)
	}
	return x
}

// MustMarshalJSON returns the JSON encoding of x. Panics on failure; for
// test purposes only.
func MustMarshalJSON(x interface{}) []byte {
	bs, err := json.Marshal(x)
	if err != nil {
		panic(err)
	}
	return bs
}
