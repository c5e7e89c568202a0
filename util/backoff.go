// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package util

import (
	"math/rand"
	"time"
)

// DefaultBackoff returns a delay with an exponential backoff based on the
// number of retries, using a fixed jitter/factor pair. The transaction
// manager's commit-retry loop (spec §4.4, ConflictErr) uses this between
// a failed commit and re-staging against the new base version.
func DefaultBackoff(base, maxNS float64, retries int) time.Duration {
	return Backoff(base, maxNS, 0.1, 2, retries)
}

// Backoff returns a delay with an exponential backoff based on the number
// of retries. Same algorithm used in gRPC: base * factor^retries, capped
// at maxNS, with +/- jitter applied multiplicatively.
func Backoff(base, maxNS, jitter, factor float64, retries int) time.Duration {
	if retries < 0 {
		retries = 0
	}
	backoff, max := base, maxNS
	for backoff < max && retries > 0 {
		backoff *= factor
		retries--
	}
	if backoff > max {
		backoff = max
	}
	backoff *= 1 + jitter*(rand.Float64()*2-1)
	if backoff < 0 {
		backoff = 0
	}
	return time.Duration(backoff)
}
