// Package fs abstracts the file operations used to publish artifacts so
// tests can inject failures.
//
// Production code uses Default. Tests wrap it in a FaultyFS:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tmp", fs.Fault{FailAfterBytes: 16})
//
// Operations take no context; they are local and short.
package fs
