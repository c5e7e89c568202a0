// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package metrics

import "time"

// Timer starts a stopwatch against the named histogram; the returned
// function records the elapsed time when called. Mirrors the
// Start/Stop-pair idiom the teacher's storage/disk transactions use
// around commitTimer, adapted to return a closure instead of a stateful
// Timer value since callers here are always structured as defer stop().
func (r *Registry) Timer(name, dataset string) func() {
	start := time.Now()
	return func() {
		r.ObserveSeconds(name, dataset, time.Since(start).Seconds())
	}
}
