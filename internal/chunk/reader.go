package chunk

import (
	"context"
	"fmt"
	"io"
)

// Reader presents the chunked remote file as an io.ReaderAt. Reads that span
// chunk boundaries pull each chunk through the store, so cached regions cost
// no I/O. The context is the owning connection's lifetime: the SQLite VFS
// issues reads without one.
type Reader struct {
	store *Store
	ctx   context.Context
}

// NewReader creates a Reader over store, bound to ctx for fetches.
func NewReader(ctx context.Context, store *Store) *Reader {
	return &Reader{store: store, ctx: ctx}
}

// Size returns the total size of the remote file.
func (r *Reader) Size() int64 { return r.store.identity.TotalSize }

// ReadAt implements io.ReaderAt.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	size := r.Size()
	if off < 0 {
		return 0, fmt.Errorf("invalid offset %d", off)
	}
	if off >= size {
		return 0, io.EOF
	}

	chunkSize := int64(r.store.identity.ChunkSize)
	n := 0
	for n < len(p) && off < size {
		index := int(off / chunkSize)
		data, err := r.store.Get(r.ctx, index)
		if err != nil {
			return n, err
		}
		inner := int(off - int64(index)*chunkSize)
		copied := copy(p[n:], data[inner:])
		n += copied
		off += int64(copied)
	}

	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
