// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package vc provides buildtime information.
package vc // import "go.opentelemetry.io/ebpf-sampler/vc"

import (
	"runtime/debug"
	"sync"
)

var (
	// The following variables are set at link time using ldflags, e.g.
	// -X go.opentelemetry.io/ebpf-sampler/vc.version=v0.1.0

	// revision of the sampler
	revision = ""
	// buildTimestamp, timestamp of the build
	buildTimestamp = ""
	// version in vX.Y.Z{-N-abbrev} format (via git-describe --tags)
	version = ""
)

var fillFromBuildInfo = sync.OnceFunc(func() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if revision == "" {
				revision = s.Value
			}
		case "vcs.time":
			if buildTimestamp == "" {
				buildTimestamp = s.Value
			}
		}
	}
})

// Revision of the sampler. Falls back to the VCS revision recorded by the Go toolchain.
func Revision() string {
	fillFromBuildInfo()
	return revision
}

// BuildTimestamp returns the timestamp of the build.
func BuildTimestamp() string {
	fillFromBuildInfo()
	return buildTimestamp
}

// Version in vX.Y.Z{-N-abbrev} format.
func Version() string {
	fillFromBuildInfo()
	return version
}
