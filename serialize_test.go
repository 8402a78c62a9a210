package anvil

import (
	"bytes"
	"testing"
)

func TestRegionEncodeDecodeRoundTrip(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	if _, err := region.SetBlock(2, 80, 2, NewBlock("beacon")); err != nil {
		t.Fatal(err)
	}
	if _, err := region.SetBiomeAt(100, 64, 100, "desert"); err != nil {
		t.Fatal(err)
	}
	if err := region.Flush(); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := region.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len()%4096 != 0 {
		t.Errorf("container size %d is not sector aligned", buf.Len())
	}

	decoded, err := Decode(bytes.NewReader(buf.Bytes()), 0, 0, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ChunkCount() != RegionWidth*RegionWidth {
		t.Fatalf("decoded %d chunks, want %d", decoded.ChunkCount(), RegionWidth*RegionWidth)
	}

	block, err := decoded.GetBlock(2, 80, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !block.Equal(NewBlock("beacon")) {
		t.Errorf("block after round trip = %v, want beacon", block)
	}
	biome, err := decoded.GetBiomeAt(100, 64, 100)
	if err != nil {
		t.Fatal(err)
	}
	if biome != "minecraft:desert" {
		t.Errorf("biome after round trip = %q, want minecraft:desert", biome)
	}
}

func TestRegionEncodeCompressionTypes(t *testing.T) {
	for _, compression := range []CompressionType{CompressionGzip, CompressionZlib, CompressionNone} {
		cfg := DefaultConfig()
		cfg.Compression = compression

		region := FullEmpty(0, 0, cfg)
		if _, err := region.SetBlock(0, 0, 0, NewBlock("stone")); err != nil {
			t.Fatal(err)
		}
		if err := region.WriteBlocks(); err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		if err := region.Encode(&buf); err != nil {
			t.Fatalf("compression %d: %v", compression, err)
		}
		decoded, err := Decode(bytes.NewReader(buf.Bytes()), 0, 0, cfg)
		if err != nil {
			t.Fatalf("compression %d: %v", compression, err)
		}
		block, err := decoded.GetBlock(0, 0, 0)
		if err != nil {
			t.Fatalf("compression %d: %v", compression, err)
		}
		if !block.Equal(NewBlock("stone")) {
			t.Errorf("compression %d: block = %v, want stone", compression, block)
		}
	}
}

func TestUnmodifiedChunksPassThrough(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	var first bytes.Buffer
	if err := region.Encode(&first); err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(bytes.NewReader(first.Bytes()), 0, 0, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	// Only chunk (0, 0) is modified; every other chunk must keep its
	// original compressed payload.
	if _, err := decoded.SetBlock(0, 64, 0, NewBlock("stone")); err != nil {
		t.Fatal(err)
	}
	if err := decoded.WriteBlocks(); err != nil {
		t.Fatal(err)
	}

	for pos, chunk := range decoded.chunks {
		if pos == (ChunkPos{0, 0}) {
			if !chunk.modified {
				t.Error("edited chunk not marked modified")
			}
			continue
		}
		if chunk.modified || chunk.raw == nil {
			t.Fatalf("chunk %v lost its pass-through payload", pos)
		}
	}
}

func TestChunkPayloadRoundTrip(t *testing.T) {
	tree := Compound{
		"Status":      RequiredStatus,
		"DataVersion": int32(MinDataVersion),
		"sections":    []any{},
		"custom":      Compound{"nested": int32(7), "longs": []int64{1, 2, 3}},
	}
	for _, compression := range []CompressionType{CompressionGzip, CompressionZlib, CompressionNone} {
		sector, err := compressChunk(tree, compression)
		if err != nil {
			t.Fatalf("compression %d: %v", compression, err)
		}
		if CompressionType(sector[0]) != compression {
			t.Fatalf("sector tagged %d, want %d", sector[0], compression)
		}
		decoded, err := decompressChunk(sector)
		if err != nil {
			t.Fatalf("compression %d: %v", compression, err)
		}
		if status, _ := decoded.String("Status"); status != RequiredStatus {
			t.Errorf("compression %d: Status = %q", compression, status)
		}
		custom, err := decoded.Compound("custom")
		if err != nil {
			t.Fatalf("compression %d: custom tag lost: %v", compression, err)
		}
		longs, err := custom.LongArray("longs")
		if err != nil || len(longs) != 3 || longs[2] != 3 {
			t.Errorf("compression %d: long array mangled: %v %v", compression, longs, err)
		}
	}
}

func TestMemFile(t *testing.T) {
	f := newMemFile(nil)
	if _, err := f.Write([]byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(2, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte("XY")); err != nil {
		t.Fatal(err)
	}
	if got := string(f.Bytes()); got != "abXYef" {
		t.Errorf("contents = %q, want abXYef", got)
	}

	if _, err := f.Seek(0, 0); err != nil {
		t.Fatal(err)
	}
	out := make([]byte, 6)
	if _, err := f.Read(out); err != nil {
		t.Fatal(err)
	}
	if string(out) != "abXYef" {
		t.Errorf("read back %q", out)
	}
}
