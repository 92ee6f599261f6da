// Package testutil provides test data generators for the index.
//
// This package is intended for use in tests and benchmarks only.
//
//	rng := testutil.NewRNG(42)
//	items := rng.Items(1000, 100, 5)   // random boxes, payloads 1..1000
//	want := testutil.Overlapping(items, query)
package testutil
