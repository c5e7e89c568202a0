// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package util_test

import (
	"encoding/json"
	"testing"

	"github.com/contextframe/contextframe/util"
)

func TestInvalidJSONInput(t *testing.T) {
	cases := [][]byte{
		[]byte("{ \"k\": 1 }\n{}}"),
		[]byte("{ \"k\": 1 }\n!!!}"),
	}
	for _, tc := range cases {
		var x interface{}
		err := util.UnmarshalJSON(tc, &x)
		if err == nil {
			t.Errorf("should be an error")
		}
	}
}

func TestUnmarshalJSONUsesJSONNumber(t *testing.T) {
	var x interface{}
	if err := util.UnmarshalJSON([]byte(`{"rows": 9007199254740993}`), &x); err != nil {
		t.Fatal(err)
	}
	m := x.(map[string]interface{})
	n, ok := m["rows"].(json.Number)
	if !ok {
		t.Fatalf("expected json.Number, got %T", m["rows"])
	}
	if n.String() != "9007199254740993" {
		t.Fatalf("precision lost: got %s", n.String())
	}
}

func TestMustMarshalUnmarshalRoundTrip(t *testing.T) {
	in := map[string]interface{}{"a": "b"}
	bs := util.MustMarshalJSON(in)
	out := util.MustUnmarshalJSON(bs).(map[string]interface{})
	if out["a"] != "b" {
		t.Fatalf("round trip mismatch: %v", out)
	}
}
