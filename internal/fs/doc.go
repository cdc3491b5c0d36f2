// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/sync capabilities and its descriptor
//   - [FileSystem]: filesystem operations (open, remove, rename, link, etc.)
//
// # Implementations
//
//   - [LocalFS]: Production implementation using standard os package
//   - [FaultyFS]: Test utility for fault injection (simulate I/O errors)
//
// # Usage
//
// Production code should use fs.Default (which is [LocalFS]):
//
//	file, err := fs.Default.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
//
// Tests can inject [FaultyFS] to simulate failures:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".ctr", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
//	// inject ffs into component under test
//
// Operations take no context.Context. Local syscalls are not interruptible;
// callers that need deadlines check their context between calls.
package fs
