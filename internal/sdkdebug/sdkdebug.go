// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package sdkdebug provides a mechanism to configure diagnostic switches
// via the AGENTSDK_DEBUG environment variable.
//
// The value of AGENTSDK_DEBUG is a comma-separated list of key=value pairs.
// For example:
//
//	AGENTSDK_DEBUG=tracewire=1,frameSize=1
package sdkdebug

import (
	"fmt"
	"os"
	"strings"
)

const debugEnvKey = "AGENTSDK_DEBUG"

var params map[string]string

func init() {
	var err error
	params, err = parse(os.Getenv(debugEnvKey))
	if err != nil {
		panic(err)
	}
}

// Value returns the value of the debug switch with the given key.
// It returns an empty string if the key is not set.
func Value(key string) string {
	return params[key]
}

func parse(envValue string) (map[string]string, error) {
	if envValue == "" {
		return nil, nil
	}

	out := make(map[string]string)
	for part := range strings.SplitSeq(envValue, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%s: invalid format: %q", debugEnvKey, part)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}
