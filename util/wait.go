// Copyright 2020 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"time"
)

// WaitFunc polls cond at the given interval until it returns true or
// timeout elapses, returning an error in the latter case. Only this
// package's own test calls it.
func WaitFunc(cond func() bool, interval, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %v waiting for condition", timeout)
		}
		time.Sleep(interval)
	}
}
