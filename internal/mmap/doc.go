// Package mmap provides read-only memory-mapped file access for the local blob store.
//
//	m, err := mmap.Open("acquisition/data")
//	if err != nil { ... }
//	defer m.Close()
//	_ = m.Advise(mmap.AccessRandom)
//	data := m.Bytes()
//
// On Unix the mapping uses mmap(2) and madvise(2); on Windows it uses
// CreateFileMapping/MapViewOfFile and Advise is a no-op.
package mmap
