// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with positional read/write and sync capabilities
//   - [FileSystem]: filesystem operations (open, remove, rename, etc.)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility for fault injection (simulate I/O errors)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to simulate failures of the page file or of a
// local checkpoint directory:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("pages", fs.Fault{FailOnSync: true})
//
// Operations do not take a context.Context. Local file I/O is not interruptible
// at the syscall level; slow remote targets go through the blobstore package.
package fs
