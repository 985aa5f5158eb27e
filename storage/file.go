package storage

import "github.com/joeycumines/go-dslab/kernel"

// File is a handle to an opened file on a Storage: a name plus the
// Storage it belongs to. It carries no content of its own; every
// operation reads or mutates the Storage's shared file map once the
// corresponding disk request completes.
type File struct {
	storage *Storage
	name    string
}

// Name returns the file's logical name.
func (f *File) Name() string { return f.name }

// Append queues data for writing and suspends the calling task until
// the disk model reports completion (or the storage crashes). The
// number of bytes actually written may be less than len(data) if the
// storage had less free space than requested.
func (f *File) Append(h *kernel.TaskHandle, data []byte) (uint64, error) {
	return f.storage.append(h, f.name, data)
}

// Read copies up to len(buf) bytes starting at offset into buf,
// suspending the calling task until the disk model reports completion
// (or the storage crashes). Reading past end-of-file returns 0, nil.
func (f *File) Read(h *kernel.TaskHandle, offset uint64, buf []byte) (uint64, error) {
	return f.storage.read(h, f.name, offset, buf)
}

// ReadAll reads the whole file in TypicalReadSize-bounded chunks and
// returns its full contents.
func (f *File) ReadAll(h *kernel.TaskHandle) ([]byte, error) {
	var out []byte
	var offset uint64
	buf := make([]byte, TypicalReadSize)
	for {
		n, err := f.Read(h, offset, buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
		offset += n
	}
}
