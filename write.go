package anvil

import (
	"runtime"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

// WriteBlocks pushes every buffered block edit into the chunk NBT trees.
// Dirty chunks are flushed in parallel; each chunk's work only touches that
// chunk, so the workers never contend.
//
// Flushing is best effort per chunk: on an error the failing chunk keeps its
// buffered edits, chunks flushed before it have theirs cleared, and the
// first error encountered is returned once dispatched chunks finish.
func (r *Region) WriteBlocks() error {
	r.mu.RLock()
	chunks := make(map[ChunkPos]*ChunkData, len(r.chunks))
	for pos, c := range r.chunks {
		chunks[pos] = c
	}
	cfg := r.cfg
	r.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for pos, c := range chunks {
		g.Go(func() error {
			return c.writeBlocks(pos, cfg)
		})
	}
	return g.Wait()
}

// WriteBiomes pushes every buffered biome edit into the chunk NBT trees,
// with the same parallelism and failure semantics as WriteBlocks.
func (r *Region) WriteBiomes() error {
	r.mu.RLock()
	chunks := make(map[ChunkPos]*ChunkData, len(r.chunks))
	for pos, c := range r.chunks {
		chunks[pos] = c
	}
	r.mu.RUnlock()

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for pos, c := range chunks {
		g.Go(func() error {
			return c.writeBiomes(pos)
		})
	}
	return g.Wait()
}

// Flush writes both buffered blocks and buffered biomes.
func (r *Region) Flush() error {
	if err := r.WriteBlocks(); err != nil {
		return err
	}
	return r.WriteBiomes()
}

// writeBlocks applies the chunk's pending block edits to its NBT tree. It is
// idempotent: a chunk without pending edits returns immediately.
func (c *ChunkData) writeBlocks(pos ChunkPos, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirtyBlocks {
		return nil
	}
	if c.pins.Load() != 0 {
		return &AliasedChunkError{Chunk: pos}
	}
	if err := c.validate(pos); err != nil {
		return err
	}

	// Heightmaps can only become stale after an edit.
	if heightmaps, err := c.nbt.Compound("Heightmaps"); err == nil {
		for k := range heightmaps {
			delete(heightmaps, k)
		}
	}
	if cfg.UpdateLighting {
		c.nbt.SetByte("isLightOn", 0)
	}

	sections, err := c.sections()
	if err != nil {
		return err
	}

	// Block entities sitting at an edited coordinate are stale once the
	// block is replaced; collect their section-local coordinates (x, y and z
	// each masked to 0..15) here and sweep the block_entities list
	// afterwards.
	swept := make(map[[3]int]bool)

	// The scratch index array and the palette lookup cache are reused for
	// every section of this chunk.
	scratch := make([]int64, SectionVolume)
	cache := make(map[uint64]int64)

	for _, section := range sections {
		y, err := section.Byte("Y")
		if err != nil {
			return err
		}
		pending := c.pendingBlocks[int(y)]
		if len(pending) == 0 {
			continue
		}

		if cfg.UpdateLighting {
			delete(section, "BlockLight")
			delete(section, "SkyLight")
		}

		state, err := section.Compound("block_states")
		if err != nil {
			return err
		}
		palette, err := state.List("palette")
		if err != nil {
			return err
		}
		var data []int64
		if state.Has("data") {
			if data, err = state.LongArray("data"); err != nil {
				return err
			}
		}

		count := decodePacked(scratch, blockBits(len(palette)), data)
		for i := count; i < SectionVolume; i++ {
			scratch[i] = 0
		}
		count = SectionVolume
		for _, idx := range scratch {
			if idx < 0 || idx >= int64(len(palette)) {
				return &InvalidPaletteIndexError{Index: idx}
			}
		}

		for k := range cache {
			delete(cache, k)
		}
		for _, edit := range pending {
			key := xxhash.Sum64String(edit.Block.Key())
			idx, ok := cache[key]
			if !ok {
				if idx = findBlock(palette, edit.Block); idx < 0 {
					if len(palette) >= SectionVolume {
						return &PaletteOverflowError{Len: len(palette) + 1}
					}
					palette = append(palette, edit.Block.compound())
					idx = int64(len(palette) - 1)
				}
				cache[key] = idx
			}

			lx, ly, lz := edit.Coords.X&15, edit.Coords.Y&15, edit.Coords.Z&15
			scratch[lx+lz*ChunkWidth+ly*ChunkWidth*ChunkWidth] = idx
			swept[[3]int{lx, ly, lz}] = true
		}

		palette = compactPalette(scratch, count, palette)
		state["palette"] = palette
		if len(palette) == 1 {
			delete(state, "data")
		} else {
			state["data"] = encodePacked(blockBits(len(palette)), scratch, count)
		}
	}

	if err := c.sweepBlockEntities(swept); err != nil {
		return err
	}

	c.pendingBlocks = make(map[int][]BlockWithCoords)
	c.seenBlocks.ClearAll()
	c.dirtyBlocks = false
	c.modified = true
	return nil
}

// writeBiomes applies the chunk's pending biome edits to its NBT tree.
// Biome sections share the palette and packed data layout with blocks, just
// with 64 cells per section and no minimum bit width; biomes also have no
// block entity or lighting side effects.
func (c *ChunkData) writeBiomes(pos ChunkPos) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirtyBiomes {
		return nil
	}
	if c.pins.Load() != 0 {
		return &AliasedChunkError{Chunk: pos}
	}
	if err := c.validate(pos); err != nil {
		return err
	}

	sections, err := c.sections()
	if err != nil {
		return err
	}

	scratch := make([]int64, BiomeSectionVolume)
	cache := make(map[string]int64)

	for _, section := range sections {
		y, err := section.Byte("Y")
		if err != nil {
			return err
		}
		pending := c.pendingBiomes[int(y)]
		if len(pending) == 0 {
			continue
		}

		biomes, err := section.Compound("biomes")
		if err != nil {
			return err
		}
		palette, err := biomes.List("palette")
		if err != nil {
			return err
		}
		var data []int64
		if biomes.Has("data") {
			if data, err = biomes.LongArray("data"); err != nil {
				return err
			}
		}

		count := decodePacked(scratch, biomeBits(len(palette)), data)
		for i := count; i < BiomeSectionVolume; i++ {
			scratch[i] = 0
		}
		count = BiomeSectionVolume
		for _, idx := range scratch {
			if idx < 0 || idx >= int64(len(palette)) {
				return &InvalidPaletteIndexError{Index: idx}
			}
		}

		for k := range cache {
			delete(cache, k)
		}
		for _, edit := range pending {
			idx, ok := cache[edit.ID]
			if !ok {
				if idx = findBiome(palette, edit.ID); idx < 0 {
					palette = append(palette, edit.ID)
					idx = int64(len(palette) - 1)
				}
				cache[edit.ID] = idx
			}
			scratch[edit.Cell.index()] = idx
		}

		palette = compactPalette(scratch, count, palette)
		biomes["palette"] = palette
		if len(palette) == 1 {
			delete(biomes, "data")
		} else {
			biomes["data"] = encodePacked(biomeBits(len(palette)), scratch, count)
		}
	}

	c.pendingBiomes = make(map[int][]BiomeWithCell)
	c.seenBiomes.ClearAll()
	c.dirtyBiomes = false
	c.modified = true
	return nil
}

// setSection replaces an entire section with a single uniform block without
// going through the pending buffer: the palette collapses to one entry and
// the packed data disappears.
func (c *ChunkData) setSection(pos ChunkPos, sy int, block Block, cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pins.Load() != 0 {
		return &AliasedChunkError{Chunk: pos}
	}
	if err := c.validate(pos); err != nil {
		return err
	}
	section, err := c.section(sy)
	if err != nil {
		return err
	}

	state, err := section.Compound("block_states")
	if err != nil {
		return err
	}
	state["palette"] = []any{block.compound()}
	delete(state, "data")

	if cfg.UpdateLighting {
		delete(section, "BlockLight")
		delete(section, "SkyLight")
		c.nbt.SetByte("isLightOn", 0)
	}

	if err := c.evictBlockEntities(func(x, y, z int32) bool {
		return SectionAt(int(y)) == sy
	}); err != nil {
		return err
	}
	c.modified = true
	return nil
}

// sweepBlockEntities removes every block entity whose section-local
// coordinates (x, y and z masked to 0..15) appear in the swept set. The
// section an entity sits in is not compared, so an entity at the same
// section-local position in any section of the chunk is removed too.
func (c *ChunkData) sweepBlockEntities(swept map[[3]int]bool) error {
	if len(swept) == 0 {
		return nil
	}
	return c.evictBlockEntities(func(x, y, z int32) bool {
		return swept[[3]int{int(x & 15), int(y & 15), int(z & 15)}]
	})
}

// evictBlockEntities filters the chunk's block_entities list, dropping the
// entries the predicate matches. A chunk without the tag has no block
// entities and nothing to do.
func (c *ChunkData) evictBlockEntities(drop func(x, y, z int32) bool) error {
	if !c.nbt.Has("block_entities") {
		return nil
	}
	list, err := c.nbt.List("block_entities")
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, v := range list {
		entity, err := asCompound(v, "block_entities")
		if err != nil {
			return &InvalidListError{Name: "block_entities"}
		}
		x, err := entity.Int("x")
		if err != nil {
			return err
		}
		y, err := entity.Int("y")
		if err != nil {
			return err
		}
		z, err := entity.Int("z")
		if err != nil {
			return err
		}
		if !drop(x, y, z) {
			kept = append(kept, v)
		}
	}
	c.nbt["block_entities"] = kept
	return nil
}

// findBlock returns the palette index holding the block, or -1.
func findBlock(palette []any, block Block) int64 {
	for i, entry := range palette {
		if block.matchesCompound(entry) {
			return int64(i)
		}
	}
	return -1
}

// findBiome returns the palette index holding the biome id, or -1.
func findBiome(palette []any, id string) int64 {
	for i, entry := range palette {
		if s, ok := entry.(string); ok && s == id {
			return int64(i)
		}
	}
	return -1
}
