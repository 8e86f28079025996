// Package resource bounds the memory, maintenance concurrency, and upload rate of a
// directory.
//
//   - Memory: resident page frames and cached component bytes (non-blocking, fail-fast)
//   - Background: garbage collection and checkpoint jobs (weighted semaphore)
//   - IO: checkpoint uploads to a blob store (token bucket)
//
// # Memory
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 256 << 20,
//	})
//
//	if err := rc.AcquireMemory(page.Size); err != nil {
//	    // ErrMemoryLimitExceeded - caller decides whether to evict or fail
//	}
//	defer rc.ReleaseMemory(page.Size)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
