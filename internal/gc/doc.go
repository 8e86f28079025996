// Package gc reclaims the storage of retired segments.
//
// An entry is removed once it is recyclable: retired by a committed transaction
// that every running snapshot already sees as finished, with none of its file
// chains pinned. Its chains go back to the page free space map and are reused
// after every scan that could still reach them has ended.
package gc
