// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package xsync provides thin wrappers around locking primitives in an effort towards better
// documenting the relationship between locks and the data they protect.
package xsync
