// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"time"

	"golang.org/x/time/rate"
)

// restartGate bounds how often an opportunistic auto-restart may fire, so
// a server that repeatedly drops the connection cannot drive the client
// into a tight restart loop.
type restartGate struct {
	limiter *rate.Limiter
}

// One restart per 10 seconds, with a single-token burst: the first
// unexpected close after a quiet period restarts immediately, and further
// flapping is throttled rather than retried in a loop.
func newRestartGate() *restartGate {
	return &restartGate{limiter: rate.NewLimiter(rate.Every(10*time.Second), 1)}
}

// allow reports whether an auto-restart attempt may proceed now.
func (g *restartGate) allow() bool {
	return g.limiter.Allow()
}
