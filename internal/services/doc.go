// Package services wires the refundmatch components from configuration.
//
// Open builds the history store, the vendor and pattern matchers, the
// precedent builder, the correction learner and the batch runner. The
// legal corpus and the LLM classifier are optional and only built when
// enabled. Both refundd and refundctl go through this package, so the two
// binaries always see the same thresholds and backends.
package services
