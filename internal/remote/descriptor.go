// Package remote implements the chunked remote database access layer: suffix
// descriptor resolution, ranged chunk fetching, and tiered retry handling.
package remote

import (
	"encoding/json"
	"fmt"
)

// DescriptorSuffix is appended to a database URL to locate its suffix
// descriptor.
const DescriptorSuffix = ".suffix"

// FormatVersion is the descriptor format this build understands.
const FormatVersion = 1

// Descriptor is the suffix descriptor: a small metadata document describing
// how the remote database file is partitioned into fixed-size chunks.
type Descriptor struct {
	Size       uint64 `json:"size"`
	PageSize   uint32 `json:"pageSize"`
	ChunkSize  uint32 `json:"chunkSize"`
	URL        string `json:"url"`
	ChunkCount uint32 `json:"chunkCount"`
	Version    uint32 `json:"version"`
}

// ParseDescriptor decodes and structurally validates a suffix descriptor.
// All failures are terminal; retrying cannot fix a malformed descriptor.
func ParseDescriptor(data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, Terminal(fmt.Errorf("%w: malformed descriptor: %w", ErrMetadataUnavailable, err))
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, Terminal(err)
	}
	return d, nil
}

// Validate checks the descriptor's internal consistency.
func (d Descriptor) Validate() error {
	if d.Size == 0 {
		return fmt.Errorf("%w: descriptor size must be positive", ErrMetadataUnavailable)
	}
	if d.PageSize == 0 {
		return fmt.Errorf("%w: descriptor pageSize must be positive", ErrMetadataUnavailable)
	}
	if d.ChunkSize == 0 {
		return fmt.Errorf("%w: descriptor chunkSize must be positive", ErrMetadataUnavailable)
	}
	if d.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported descriptor version %d", ErrMetadataUnavailable, d.Version)
	}

	want := (d.Size + uint64(d.ChunkSize) - 1) / uint64(d.ChunkSize)
	if uint64(d.ChunkCount) != want {
		return fmt.Errorf("%w: chunkCount %d inconsistent with size %d / chunkSize %d (want %d)",
			ErrMetadataUnavailable, d.ChunkCount, d.Size, d.ChunkSize, want)
	}
	return nil
}

// Identity uniquely identifies one remote database instance. It is immutable
// once resolved.
type Identity struct {
	URL           string
	TotalSize     int64
	PageSize      int
	ChunkSize     int
	ChunkCount    int
	FormatVersion int
}

// Identity converts a validated descriptor into an Identity. The descriptor
// may name its own canonical URL; otherwise the URL it was fetched for is
// used.
func (d Descriptor) Identity(fetchedFrom string) Identity {
	url := d.URL
	if url == "" {
		url = fetchedFrom
	}
	return Identity{
		URL:           url,
		TotalSize:     int64(d.Size),
		PageSize:      int(d.PageSize),
		ChunkSize:     int(d.ChunkSize),
		ChunkCount:    int(d.ChunkCount),
		FormatVersion: int(d.Version),
	}
}

// ChunkRange returns the byte range [offset, offset+length) covered by the
// chunk at index. The final chunk may be shorter than ChunkSize.
func (id Identity) ChunkRange(index int) (offset, length int64) {
	offset = int64(index) * int64(id.ChunkSize)
	length = int64(id.ChunkSize)
	if offset+length > id.TotalSize {
		length = id.TotalSize - offset
	}
	return offset, length
}
