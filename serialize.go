package anvil

import (
	"bytes"
	"fmt"
	"io"

	"github.com/Tnze/go-mc/save/region"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// Decode parses a whole region container into a Region. Every chunk present
// in the container is decompressed and its NBT parsed up front; absent
// chunks are skipped. rx and rz are the region's world coordinates as found
// in the file name.
func Decode(rd io.Reader, rx, rz int, cfg Config) (*Region, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, &ContainerError{Err: err}
	}
	container, err := region.Load(newMemFile(data))
	if err != nil {
		return nil, &ContainerError{Err: err}
	}

	r := &Region{
		chunks: make(map[ChunkPos]*ChunkData),
		rx:     rx,
		rz:     rz,
		cfg:    cfg,
	}
	for cz := 0; cz < RegionWidth; cz++ {
		for cx := 0; cx < RegionWidth; cx++ {
			if !container.ExistSector(cx, cz) {
				continue
			}
			sector, err := container.ReadSector(cx, cz)
			if err != nil {
				return nil, &ContainerError{Err: fmt.Errorf("read chunk (%d, %d): %w", cx, cz, err)}
			}
			tree, err := decompressChunk(sector)
			if err != nil {
				return nil, fmt.Errorf("decode chunk (%d, %d): %w", cx, cz, err)
			}
			r.chunks[ChunkPos{cx, cz}] = newChunkData(tree, sector, cfg.WorldHeight)
		}
	}
	return r, nil
}

// Encode writes the region back out as a container. Chunks that were never
// modified are passed through as their original compressed bytes; modified
// and synthesized chunks are re-encoded with the configured compression.
func (r *Region) Encode(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mem := newMemFile(nil)
	container, err := region.CreateWriter(mem)
	if err != nil {
		return &ContainerError{Err: err}
	}
	for cz := 0; cz < RegionWidth; cz++ {
		for cx := 0; cx < RegionWidth; cx++ {
			c, ok := r.chunks[ChunkPos{cx, cz}]
			if !ok {
				continue
			}
			c.mu.Lock()
			sector := c.raw
			if c.modified || sector == nil {
				sector, err = compressChunk(c.nbt, r.cfg.Compression)
			}
			c.mu.Unlock()
			if err != nil {
				return fmt.Errorf("encode chunk (%d, %d): %w", cx, cz, err)
			}
			if err := container.WriteSector(cx, cz, sector); err != nil {
				return &ContainerError{Err: fmt.Errorf("write chunk (%d, %d): %w", cx, cz, err)}
			}
		}
	}
	if err := container.PadToFullSector(); err != nil {
		return &ContainerError{Err: err}
	}
	if err := container.Close(); err != nil {
		return &ContainerError{Err: err}
	}

	if _, err := w.Write(mem.Bytes()); err != nil {
		return &ContainerError{Err: err}
	}
	return nil
}

// decompressChunk inflates a container sector payload (a compression tag
// followed by the compressed chunk NBT) and parses the chunk tree.
func decompressChunk(sector []byte) (Compound, error) {
	if len(sector) == 0 {
		return nil, &ContainerError{Err: fmt.Errorf("empty chunk payload")}
	}

	var raw []byte
	switch CompressionType(sector[0]) {
	case CompressionGzip:
		gz, err := gzip.NewReader(bytes.NewReader(sector[1:]))
		if err != nil {
			return nil, &ContainerError{Err: err}
		}
		defer gz.Close()
		if raw, err = io.ReadAll(gz); err != nil {
			return nil, &ContainerError{Err: err}
		}
	case CompressionZlib:
		zr, err := zlib.NewReader(bytes.NewReader(sector[1:]))
		if err != nil {
			return nil, &ContainerError{Err: err}
		}
		defer zr.Close()
		if raw, err = io.ReadAll(zr); err != nil {
			return nil, &ContainerError{Err: err}
		}
	case CompressionNone:
		raw = sector[1:]
	default:
		return nil, &ContainerError{Err: fmt.Errorf("unknown compression type %d", sector[0])}
	}

	var tree map[string]any
	if err := nbt.UnmarshalEncoding(raw, &tree, nbt.BigEndian); err != nil {
		return nil, &NbtError{Err: err}
	}
	return Compound(tree), nil
}

// compressChunk encodes a chunk tree as a nameless NBT root and compresses
// it into a container sector payload.
func compressChunk(tree Compound, compression CompressionType) ([]byte, error) {
	raw, err := nbt.MarshalEncoding(tree, nbt.BigEndian)
	if err != nil {
		return nil, &NbtError{Err: err}
	}

	buf := bytes.NewBuffer(make([]byte, 0, len(raw)/2))
	buf.WriteByte(byte(compression))
	switch compression {
	case CompressionGzip:
		gz := gzip.NewWriter(buf)
		if _, err := gz.Write(raw); err != nil {
			return nil, &ContainerError{Err: err}
		}
		if err := gz.Close(); err != nil {
			return nil, &ContainerError{Err: err}
		}
	case CompressionZlib:
		zw := zlib.NewWriter(buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, &ContainerError{Err: err}
		}
		if err := zw.Close(); err != nil {
			return nil, &ContainerError{Err: err}
		}
	case CompressionNone:
		buf.Write(raw)
	default:
		return nil, &ContainerError{Err: fmt.Errorf("unknown compression type %d", compression)}
	}
	return buf.Bytes(), nil
}

// memFile is an in-memory io.ReadWriteSeeker backing the container codec, so
// regions can be decoded from and encoded to plain byte slices.
type memFile struct {
	buf []byte
	off int64
}

func newMemFile(data []byte) *memFile {
	return &memFile{buf: data}
}

// Bytes returns the file's current contents.
func (f *memFile) Bytes() []byte { return f.buf }

// Close implements io.Closer; the buffer stays readable through Bytes.
func (f *memFile) Close() error { return nil }

func (f *memFile) Read(p []byte) (int, error) {
	if f.off >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.off:])
	f.off += int64(n)
	return n, nil
}

func (f *memFile) Write(p []byte) (int, error) {
	if grow := f.off + int64(len(p)) - int64(len(f.buf)); grow > 0 {
		f.buf = append(f.buf, make([]byte, grow)...)
	}
	n := copy(f.buf[f.off:], p)
	f.off += int64(n)
	return n, nil
}

func (f *memFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		f.off = offset
	case io.SeekCurrent:
		f.off += offset
	case io.SeekEnd:
		f.off = int64(len(f.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid seek whence %d", whence)
	}
	if f.off < 0 {
		f.off = 0
		return 0, fmt.Errorf("negative seek offset")
	}
	return f.off, nil
}
