package chunk

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"
)

func newTestFS(t *testing.T, data []byte, chunkSize int) *FS {
	t.Helper()
	store := newTestStore(t, &memFetcher{data: data}, testIdentity(len(data), chunkSize), 4096)
	return NewFS(NewReader(context.Background(), store), "remote.db")
}

func TestFSImplementsFS(t *testing.T) {
	var _ fs.FS = newTestFS(t, testObject(100), 100)
}

func TestFSOpenServesSingleFile(t *testing.T) {
	data := testObject(250)
	fsys := newTestFS(t, data, 100)

	f, err := fsys.Open("remote.db")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() {
		_ = f.Close()
	}()

	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll returned error: %v", err)
	}
	if string(got) != string(data) {
		t.Fatal("sequential read returned wrong bytes")
	}

	fi, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat returned error: %v", err)
	}
	if fi.Name() != "remote.db" || fi.Size() != 250 || fi.IsDir() {
		t.Fatalf("unexpected file info: name=%q size=%d dir=%v", fi.Name(), fi.Size(), fi.IsDir())
	}
}

func TestFSOpenRejectsOtherNames(t *testing.T) {
	fsys := newTestFS(t, testObject(100), 100)

	for _, name := range []string{"other.db", "remote.db-journal", "../remote.db/.."} {
		if _, err := fsys.Open(name); !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("Open(%q): expected fs.ErrNotExist, got %v", name, err)
		}
	}
}

func TestFSSeekAndRead(t *testing.T) {
	data := testObject(250)
	fsys := newTestFS(t, data, 100)

	f, err := fsys.Open("remote.db")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() {
		_ = f.Close()
	}()

	seeker, ok := f.(io.Seeker)
	if !ok {
		t.Fatal("file must support seeking")
	}

	if pos, err := seeker.Seek(150, io.SeekStart); err != nil || pos != 150 {
		t.Fatalf("SeekStart: got (%d, %v)", pos, err)
	}
	buf := make([]byte, 50)
	if _, err := io.ReadFull(f, buf); err != nil {
		t.Fatalf("read after seek: %v", err)
	}
	if string(buf) != string(data[150:200]) {
		t.Fatal("read after seek returned wrong bytes")
	}

	if pos, err := seeker.Seek(-50, io.SeekEnd); err != nil || pos != 200 {
		t.Fatalf("SeekEnd: got (%d, %v)", pos, err)
	}
	if pos, err := seeker.Seek(10, io.SeekCurrent); err != nil || pos != 210 {
		t.Fatalf("SeekCurrent: got (%d, %v)", pos, err)
	}
	if _, err := seeker.Seek(-300, io.SeekCurrent); err == nil {
		t.Fatal("expected error for negative seek position")
	}
}
