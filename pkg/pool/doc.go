// Package pool implements a fixed-size object pool: chunks of slots guarded
// by a two-level free bitmap, so both Alloc and Free are near O(1) and
// locality stays high under allocation churn. See pool.go for the chunk
// layout this mirrors from the original mm.c pool allocator.
package pool
