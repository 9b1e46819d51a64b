// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package probe // import "go.opentelemetry.io/ebpf-sampler/probe"

// DefaultKrb5kdcBinary is where distributions install the MIT Kerberos KDC.
const DefaultKrb5kdcBinary = "/usr/sbin/krb5kdc"

// Krb5kdcProbes instruments the request completion paths of the MIT Kerberos KDC. Each handler
// counts completions keyed by the Kerberos result code name.
var Krb5kdcProbes = []Spec{
	{
		Symbol:  "finish_process_as_req",
		Kind:    Entry,
		Handler: "count_finish_process_as_req",
		Table:   "counts_finish_process_as_req",
	},
	{
		Symbol:  "finish_dispatch_cache",
		Kind:    Entry,
		Handler: "count_finish_dispatch_cache",
		Table:   "counts_finish_dispatch_cache",
	},
	{
		// process_tgs_req returns the result code, so it is read on return.
		Symbol:  "process_tgs_req",
		Kind:    Return,
		Handler: "count_process_tgs_req",
		Table:   "counts_process_tgs_req",
	},
}

// Krb5kdc returns the krb5kdc target for the given binary path.
func Krb5kdc(binary string) Target {
	if binary == "" {
		binary = DefaultKrb5kdcBinary
	}
	probes := make([]Spec, len(Krb5kdcProbes))
	copy(probes, Krb5kdcProbes)
	return Target{Binary: binary, Probes: probes}
}
