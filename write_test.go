package anvil

import (
	"errors"
	"reflect"
	"testing"
)

func TestWriteSingleBlock(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	if _, err := region.SetBlock(2, 80, 2, NewBlock("beacon")); err != nil {
		t.Fatal(err)
	}
	if err := region.WriteBlocks(); err != nil {
		t.Fatal(err)
	}

	got, err := region.GetBlock(2, 80, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(NewBlock("beacon")) {
		t.Errorf("GetBlock(2, 80, 2) = %v, want beacon", got)
	}
	got, err = region.GetBlock(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(NewBlock("air")) {
		t.Errorf("GetBlock(0, 0, 0) = %v, want air", got)
	}
}

func TestDuplicateSuppression(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())

	inserted, err := region.SetBlock(5, 50, 5, NewBlock("stone"))
	if err != nil || !inserted {
		t.Fatalf("first SetBlock = (%v, %v), want (true, nil)", inserted, err)
	}
	inserted, err = region.SetBlock(5, 50, 5, NewBlock("dirt"))
	if err != nil || inserted {
		t.Fatalf("second SetBlock = (%v, %v), want (false, nil)", inserted, err)
	}

	if err := region.WriteBlocks(); err != nil {
		t.Fatal(err)
	}
	got, err := region.GetBlock(5, 50, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(NewBlock("stone")) {
		t.Errorf("GetBlock(5, 50, 5) = %v, want stone (first write wins)", got)
	}
}

func TestWriteClearsBuffers(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	if _, err := region.SetBlock(6, 52, 95, NewBlock("oak_planks")); err != nil {
		t.Fatal(err)
	}

	chunk, err := region.Chunk(ChunkPos{0, 5})
	if err != nil {
		t.Fatal(err)
	}
	if chunk.seenBlocks.Count() != 1 || !chunk.dirtyBlocks {
		t.Fatalf("before flush: seen bits %d, dirty %v", chunk.seenBlocks.Count(), chunk.dirtyBlocks)
	}

	if err := region.WriteBlocks(); err != nil {
		t.Fatal(err)
	}
	if chunk.seenBlocks.Count() != 0 || chunk.dirtyBlocks || len(chunk.pendingBlocks) != 0 {
		t.Errorf("after flush: seen bits %d, dirty %v, buckets %d",
			chunk.seenBlocks.Count(), chunk.dirtyBlocks, len(chunk.pendingBlocks))
	}
}

func TestUniformSectionCanonicalized(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	// Replace the whole section at y 0..15 of chunk (0, 0), block by block.
	for x := 0; x < ChunkWidth; x++ {
		for y := 0; y < ChunkWidth; y++ {
			for z := 0; z < ChunkWidth; z++ {
				if _, err := region.SetBlock(x, y, z, NewBlock("deepslate")); err != nil {
					t.Fatal(err)
				}
			}
		}
	}
	if err := region.WriteBlocks(); err != nil {
		t.Fatal(err)
	}

	chunk, err := region.Chunk(ChunkPos{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	section, err := chunk.section(0)
	if err != nil {
		t.Fatal(err)
	}
	state, err := section.Compound("block_states")
	if err != nil {
		t.Fatal(err)
	}
	palette, err := state.List("palette")
	if err != nil {
		t.Fatal(err)
	}
	if len(palette) != 1 {
		t.Fatalf("palette holds %d entries, want only deepslate", len(palette))
	}
	if !NewBlock("deepslate").matchesCompound(palette[0]) {
		t.Errorf("palette entry = %v, want deepslate", palette[0])
	}
	if state.Has("data") {
		t.Error("uniform section still carries a data tag")
	}
}

func TestPaletteSoundnessAfterWrite(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	blocks := []Block{
		NewBlock("stone"), NewBlock("dirt"), NewBlock("gravel"),
		NewBlockWithProperties("oak_slab", map[string]string{"type": "top"}),
	}
	for i := 0; i < 500; i++ {
		x, y, z := (i*7)%64, (i*13)%96-32, (i*29)%64
		if _, err := region.SetBlock(x, y, z, blocks[i%len(blocks)]); err != nil {
			t.Fatal(err)
		}
	}
	if err := region.WriteBlocks(); err != nil {
		t.Fatal(err)
	}

	for cx := 0; cx < 4; cx++ {
		for cz := 0; cz < 4; cz++ {
			chunk, err := region.Chunk(ChunkPos{cx, cz})
			if err != nil {
				t.Fatal(err)
			}
			assertPaletteSound(t, chunk)
		}
	}
}

// assertPaletteSound checks that every packed index of every section points
// into the palette and every palette entry is referenced at least once.
func assertPaletteSound(t *testing.T, chunk *ChunkData) {
	t.Helper()
	sections, err := chunk.sections()
	if err != nil {
		t.Fatal(err)
	}
	scratch := make([]int64, SectionVolume)
	for _, section := range sections {
		state, err := section.Compound("block_states")
		if err != nil {
			t.Fatal(err)
		}
		palette, err := state.List("palette")
		if err != nil {
			t.Fatal(err)
		}
		if !state.Has("data") {
			if len(palette) != 1 {
				t.Fatalf("section without data has palette of %d entries", len(palette))
			}
			continue
		}
		data, err := state.LongArray("data")
		if err != nil {
			t.Fatal(err)
		}
		count := decodePacked(scratch, blockBits(len(palette)), data)
		refs := make([]int, len(palette))
		for _, idx := range scratch[:count] {
			if idx < 0 || idx >= int64(len(palette)) {
				t.Fatalf("packed index %d outside palette of %d", idx, len(palette))
			}
			refs[idx]++
		}
		for i, n := range refs {
			if n == 0 {
				t.Fatalf("palette entry %d is dead", i)
			}
		}
	}
}

func TestWriteInvalidatesDerivedData(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	chunk, err := region.Chunk(ChunkPos{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	chunk.nbt["Heightmaps"] = Compound{"WORLD_SURFACE": []int64{1, 2, 3}}
	chunk.nbt.SetByte("isLightOn", 1)
	section, err := chunk.section(3)
	if err != nil {
		t.Fatal(err)
	}
	section["BlockLight"] = make([]byte, 2048)
	section["SkyLight"] = make([]byte, 2048)

	if _, err := region.SetBlock(1, 50, 1, NewBlock("stone")); err != nil {
		t.Fatal(err)
	}
	if err := region.WriteBlocks(); err != nil {
		t.Fatal(err)
	}

	heightmaps, err := chunk.nbt.Compound("Heightmaps")
	if err != nil {
		t.Fatal(err)
	}
	if len(heightmaps) != 0 {
		t.Error("Heightmaps not cleared by flush")
	}
	if lightOn, _ := chunk.nbt.Byte("isLightOn"); lightOn != 0 {
		t.Error("isLightOn not reset by flush")
	}
	if section.Has("BlockLight") || section.Has("SkyLight") {
		t.Error("light arrays of the touched section not removed")
	}
}

func TestWriteKeepsLightWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpdateLighting = false
	region := FullEmpty(0, 0, cfg)
	chunk, err := region.Chunk(ChunkPos{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	chunk.nbt.SetByte("isLightOn", 1)
	section, err := chunk.section(3)
	if err != nil {
		t.Fatal(err)
	}
	section["BlockLight"] = make([]byte, 2048)

	if _, err := region.SetBlock(1, 50, 1, NewBlock("stone")); err != nil {
		t.Fatal(err)
	}
	if err := region.WriteBlocks(); err != nil {
		t.Fatal(err)
	}
	if lightOn, _ := chunk.nbt.Byte("isLightOn"); lightOn != 1 {
		t.Error("isLightOn reset although lighting updates are disabled")
	}
	if !section.Has("BlockLight") {
		t.Error("BlockLight removed although lighting updates are disabled")
	}
}

func TestWriteSweepsBlockEntities(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	chunk, err := region.Chunk(ChunkPos{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	chunk.nbt["block_entities"] = []any{
		Compound{"id": "minecraft:chest", "x": int32(5), "y": int32(50), "z": int32(5)},
		Compound{"id": "minecraft:barrel", "x": int32(3), "y": int32(40), "z": int32(2)},
	}

	if _, err := region.SetBlock(5, 50, 5, NewBlock("stone")); err != nil {
		t.Fatal(err)
	}
	if err := region.WriteBlocks(); err != nil {
		t.Fatal(err)
	}

	entities, err := chunk.nbt.List("block_entities")
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 1 {
		t.Fatalf("%d block entities left, want 1", len(entities))
	}
	kept, _ := asCompound(entities[0], "block_entities")
	if id, _ := kept.String("id"); id != "minecraft:barrel" {
		t.Errorf("surviving block entity is %q, want the barrel", id)
	}
}

func TestWriteRejectsUngeneratedChunk(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	chunk, err := region.Chunk(ChunkPos{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	chunk.nbt["Status"] = "minecraft:features"

	if _, err := region.SetBlock(0, 0, 0, NewBlock("stone")); err != nil {
		t.Fatal(err)
	}
	err = region.WriteBlocks()
	var ngErr *NotFullyGeneratedError
	if !errors.As(err, &ngErr) {
		t.Fatalf("WriteBlocks = %v, want NotFullyGeneratedError", err)
	}
	if ngErr.Chunk != (ChunkPos{0, 0}) || ngErr.Status != "minecraft:features" {
		t.Errorf("error = %+v", ngErr)
	}
	if !chunk.dirtyBlocks {
		t.Error("failing chunk lost its pending edits")
	}
}

func TestWriteRejectsOldDataVersion(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	chunk, err := region.Chunk(ChunkPos{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	chunk.nbt["DataVersion"] = int32(2586)

	if _, err := region.SetBlock(0, 0, 0, NewBlock("stone")); err != nil {
		t.Fatal(err)
	}
	err = region.WriteBlocks()
	var verErr *UnsupportedVersionError
	if !errors.As(err, &verErr) {
		t.Fatalf("WriteBlocks = %v, want UnsupportedVersionError", err)
	}
	if verErr.DataVersion != 2586 {
		t.Errorf("error carries DataVersion %d, want 2586", verErr.DataVersion)
	}
}

func TestSetBlockMissingChunk(t *testing.T) {
	region, err := FromChunks(0, 0, nil, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	_, err = region.SetBlock(0, 0, 0, NewBlock("stone"))
	var missing *ModifyMissingChunkError
	if !errors.As(err, &missing) {
		t.Fatalf("SetBlock = %v, want ModifyMissingChunkError", err)
	}
}

func TestEmptyRegionSynthesizesChunks(t *testing.T) {
	region := Empty(0, 0, DefaultConfig())
	if region.ChunkCount() != 0 {
		t.Fatalf("fresh empty region holds %d chunks", region.ChunkCount())
	}
	if _, err := region.SetBlock(100, 64, 100, NewBlock("stone")); err != nil {
		t.Fatal(err)
	}
	if region.ChunkCount() != 1 {
		t.Fatalf("region holds %d chunks after one write, want 1", region.ChunkCount())
	}
	if err := region.WriteBlocks(); err != nil {
		t.Fatal(err)
	}
	got, err := region.GetBlock(100, 64, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(NewBlock("stone")) {
		t.Errorf("GetBlock = %v, want stone", got)
	}
}

func TestCoordinateLocality(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	if _, err := region.SetBlock(183, -17, 213, NewBlock("stone")); err != nil {
		t.Fatal(err)
	}
	for pos, chunk := range region.chunks {
		if pos == (ChunkPos{11, 13}) {
			if !chunk.dirtyBlocks || len(chunk.pendingBlocks[SectionAt(-17)]) != 1 {
				t.Errorf("target chunk not marked: dirty %v", chunk.dirtyBlocks)
			}
			continue
		}
		if chunk.dirtyBlocks {
			t.Errorf("chunk %v dirtied by a write to (183, -17, 213)", pos)
		}
	}
}

func TestParallelEquivalence(t *testing.T) {
	build := func() *Region {
		region := FullEmpty(0, 0, DefaultConfig())
		for i := 0; i < 2000; i++ {
			x, y, z := (i*31)%512, (i*17)%384-64, (i*53)%512
			if _, err := region.SetBlock(x, y, z, NewBlock("polished_andesite")); err != nil {
				t.Fatal(err)
			}
		}
		return region
	}

	parallel := build()
	if err := parallel.WriteBlocks(); err != nil {
		t.Fatal(err)
	}

	serial := build()
	cfg := serial.Config()
	for pos, chunk := range serial.chunks {
		if err := chunk.writeBlocks(pos, cfg); err != nil {
			t.Fatal(err)
		}
	}

	for pos, chunk := range serial.chunks {
		other := parallel.chunks[pos]
		if !reflect.DeepEqual(chunk.nbt, other.nbt) {
			t.Fatalf("chunk %v differs between serial and parallel flush", pos)
		}
	}
}

func TestAliasedChunkBlocksFlush(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	set, err := region.GetBlocks([]Coords{{X: 1, Y: 1, Z: 1}})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := region.SetBlock(1, 1, 1, NewBlock("stone")); err != nil {
		t.Fatal(err)
	}
	err = region.WriteBlocks()
	var aliased *AliasedChunkError
	if !errors.As(err, &aliased) {
		t.Fatalf("WriteBlocks with live result set = %v, want AliasedChunkError", err)
	}

	set.Release()
	if err := region.WriteBlocks(); err != nil {
		t.Fatalf("WriteBlocks after Release: %v", err)
	}
}

func TestSetSection(t *testing.T) {
	region := FullEmpty(0, 0, DefaultConfig())
	chunk, err := region.Chunk(ChunkPos{1, 1})
	if err != nil {
		t.Fatal(err)
	}
	chunk.nbt["block_entities"] = []any{
		Compound{"id": "minecraft:chest", "x": int32(20), "y": int32(40), "z": int32(28)},
		Compound{"id": "minecraft:chest", "x": int32(20), "y": int32(90), "z": int32(28)},
	}

	if err := region.SetSection(ChunkPos{1, 1}, 2, NewBlock("obsidian")); err != nil {
		t.Fatal(err)
	}

	got, err := region.GetBlock(20, 40, 28)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(NewBlock("obsidian")) {
		t.Errorf("block inside replaced section = %v, want obsidian", got)
	}
	section, err := chunk.section(2)
	if err != nil {
		t.Fatal(err)
	}
	state, err := section.Compound("block_states")
	if err != nil {
		t.Fatal(err)
	}
	if state.Has("data") {
		t.Error("uniform section carries a data tag")
	}
	entities, err := chunk.nbt.List("block_entities")
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 1 {
		t.Fatalf("%d block entities left, want only the one outside the section", len(entities))
	}
}
