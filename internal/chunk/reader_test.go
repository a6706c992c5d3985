package chunk

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
)

func TestReadAtSpansChunkBoundaries(t *testing.T) {
	data := testObject(350)
	fetcher := &memFetcher{data: data}
	store := newTestStore(t, fetcher, testIdentity(350, 100), 4096)
	r := NewReader(context.Background(), store)

	buf := make([]byte, 150)
	n, err := r.ReadAt(buf, 75)
	if err != nil {
		t.Fatalf("ReadAt returned error: %v", err)
	}
	if n != 150 {
		t.Fatalf("expected 150 bytes, got %d", n)
	}
	if string(buf) != string(data[75:225]) {
		t.Fatal("cross-chunk read returned wrong bytes")
	}
}

func TestReadAtEOFSemantics(t *testing.T) {
	data := testObject(250)
	store := newTestStore(t, &memFetcher{data: data}, testIdentity(250, 100), 4096)
	r := NewReader(context.Background(), store)

	// Read runs off the end of the file.
	buf := make([]byte, 100)
	n, err := r.ReadAt(buf, 200)
	if err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if n != 50 {
		t.Fatalf("expected 50 bytes before EOF, got %d", n)
	}
	if string(buf[:n]) != string(data[200:]) {
		t.Fatal("tail read returned wrong bytes")
	}

	// Offset at or past the end yields no bytes.
	if n, err := r.ReadAt(buf, 250); n != 0 || err != io.EOF {
		t.Fatalf("expected (0, io.EOF) at end, got (%d, %v)", n, err)
	}

	// A negative offset is invalid input, not end-of-file.
	if n, err := r.ReadAt(buf, -1); n != 0 || err == nil || err == io.EOF {
		t.Fatalf("expected an error for negative offset, got (%d, %v)", n, err)
	}
}

func TestReadAtReusesCachedChunks(t *testing.T) {
	data := testObject(300)
	fetcher := &memFetcher{data: data}
	store := newTestStore(t, fetcher, testIdentity(300, 100), 4096)
	r := NewReader(context.Background(), store)

	buf := make([]byte, 300)
	if _, err := r.ReadAt(buf, 0); err != nil {
		t.Fatalf("first ReadAt: %v", err)
	}
	if _, err := r.ReadAt(buf, 0); err != nil {
		t.Fatalf("second ReadAt: %v", err)
	}
	if n := atomic.LoadInt32(&fetcher.requests); n != 3 {
		t.Fatalf("expected 3 chunk fetches total, got %d", n)
	}
	if string(buf) != string(data) {
		t.Fatal("full read returned wrong bytes")
	}
}
