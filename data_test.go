package anvil

import (
	"math/rand"
	"testing"
)

func TestBitWidths(t *testing.T) {
	tests := []struct {
		paletteLen int
		block      uint
		biome      uint
	}{
		{1, 4, 0},
		{2, 4, 1},
		{4, 4, 2},
		{5, 4, 3},
		{16, 4, 4},
		{17, 5, 5},
		{32, 5, 5},
		{33, 6, 6},
		{64, 6, 6},
		{65, 7, 7},
		{256, 8, 8},
		{257, 9, 9},
		{1024, 10, 10},
		{2048, 11, 11},
		{2049, 12, 12},
		{4096, 12, 12},
	}
	for _, tt := range tests {
		if got := blockBits(tt.paletteLen); got != tt.block {
			t.Errorf("blockBits(%d) = %d, want %d", tt.paletteLen, got, tt.block)
		}
		if got := biomeBits(tt.paletteLen); got != tt.biome {
			t.Errorf("biomeBits(%d) = %d, want %d", tt.paletteLen, got, tt.biome)
		}
	}
}

func TestPackedRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{SectionVolume, BiomeSectionVolume, 1, 17, 100} {
		for bits := uint(1); bits <= maxBlockBits; bits++ {
			vals := make([]int64, n)
			for i := range vals {
				vals[i] = rng.Int63n(1 << bits)
			}

			packed := encodePacked(bits, vals, n)
			perLong := int(64 / bits)
			if want := (n + perLong - 1) / perLong; len(packed) != want {
				t.Fatalf("encodePacked(%d bits, %d vals) produced %d longs, want %d", bits, n, len(packed), want)
			}

			out := make([]int64, n)
			count := decodePacked(out, bits, packed)
			// The final long may carry room for more indices than were
			// encoded; the decoder reports everything it extracted.
			if count < n {
				t.Fatalf("decodePacked returned %d, want at least %d", count, n)
			}
			for i := 0; i < n; i++ {
				if out[i] != vals[i] {
					t.Fatalf("bits %d: index %d decoded to %d, want %d", bits, i, out[i], vals[i])
				}
			}
		}
	}
}

func TestPackedNoStraddling(t *testing.T) {
	// At 5 bits, 12 indices fit in a long and the top 4 bits stay unused.
	// 13 indices must spill into a second long rather than straddle.
	vals := make([]int64, 13)
	for i := range vals {
		vals[i] = 31
	}
	packed := encodePacked(5, vals, len(vals))
	if len(packed) != 2 {
		t.Fatalf("encodePacked(5 bits, 13 vals) produced %d longs, want 2", len(packed))
	}
	if packed[0]>>60 != 0 {
		t.Errorf("unused high bits of first long are not zero: %064b", uint64(packed[0]))
	}
	if packed[1] != 31 {
		t.Errorf("second long = %d, want 31", packed[1])
	}
}

func TestDecodePackedUniform(t *testing.T) {
	out := make([]int64, SectionVolume)
	for i := range out {
		out[i] = 7
	}
	count := decodePacked(out, 4, nil)
	if count != SectionVolume {
		t.Fatalf("decodePacked(nil data) = %d, want %d", count, SectionVolume)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("index %d = %d, want 0", i, v)
		}
	}
}

func TestCompactPalette(t *testing.T) {
	// Palette {a, b, c, d}; indices reference only b and d.
	palette := []any{"a", "b", "c", "d"}
	indices := []int64{1, 3, 3, 1, 1}

	palette = compactPalette(indices, len(indices), palette)

	if len(palette) != 2 || palette[0] != "b" || palette[1] != "d" {
		t.Fatalf("compacted palette = %v, want [b d]", palette)
	}
	want := []int64{0, 1, 1, 0, 0}
	for i, idx := range indices {
		if idx != want[i] {
			t.Fatalf("indices = %v, want %v", indices, want)
		}
	}
}

func TestCompactPaletteAllLive(t *testing.T) {
	palette := []any{"a", "b"}
	indices := []int64{0, 1, 0}
	palette = compactPalette(indices, len(indices), palette)
	if len(palette) != 2 {
		t.Fatalf("palette shrank to %d entries, want 2", len(palette))
	}
}

func TestCompactPaletteEveryEntryReferenced(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	palette := make([]any, 32)
	for i := range palette {
		palette[i] = i
	}
	indices := make([]int64, 256)
	for i := range indices {
		indices[i] = rng.Int63n(8) * 4 // reference only every fourth entry
	}

	palette = compactPalette(indices, len(indices), palette)

	refs := make([]int, len(palette))
	for _, idx := range indices {
		if idx < 0 || idx >= int64(len(palette)) {
			t.Fatalf("index %d out of range for palette of %d", idx, len(palette))
		}
		refs[idx]++
	}
	for i, n := range refs {
		if n == 0 {
			t.Fatalf("palette entry %d is unreferenced after compaction", i)
		}
	}
}
