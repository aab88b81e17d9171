// Package mmap maps local files read-only into memory.
//
// Local GRIB files are mapped once per open blob. Message scans and range
// fetches then read the mapping directly instead of issuing a read syscall
// per range.
//
//	f, err := mmap.Open("era5.grib")
//	if err != nil { ... }
//	defer f.Close()
//
//	_ = f.Advise(mmap.Random)
//	msg, err := f.Slice(offset, length)
//
// Unix systems use mmap(2) and madvise(2). Windows uses a file mapping view
// and ignores hints. Other platforms read the file into memory.
//
// Slices returned by Bytes and Slice are only valid until Close.
package mmap
