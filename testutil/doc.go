// Package testutil provides testing utilities for BotFS.
//
// This package is intended for use in tests and benchmarks only.
//
//	rng := testutil.NewRNG(seed)
//	blocks := rng.Blocks(8, botfs.BlockSize) // deterministic payloads
//	line := rng.Text(40)                     // printable, no NUL or '\n'
package testutil
