// Package cache provides an LRU cache for device blocks.
//
// BlockLRU keeps copies of recently transferred blocks so that repeated
// reads of volume metadata (freelist, directory) avoid the transport.
// Cached bytes are charged against an optional resource.Controller budget;
// when the budget is exhausted new blocks are not cached.
package cache
