package anvil

import (
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
)

// Region is an in-memory 32x32 grid of chunks, addressed by region-local
// block coordinates x and z in [0, 512). Block and biome writes are buffered
// per chunk and pushed into the chunk NBT by WriteBlocks and WriteBiomes.
//
// A Region is safe for concurrent use. Writers to different chunks only
// share the lock guarding the chunk map itself; writers to the same chunk
// serialize on that chunk.
type Region struct {
	mu     sync.RWMutex
	chunks map[ChunkPos]*ChunkData

	// rx, rz are the region's coordinates in the world, i.e. the numbers in
	// the r.<rx>.<rz>.mca file name.
	rx, rz int

	cfg Config
}

// Empty creates a region with no chunks at all. Chunk synthesis on missing
// writes is enabled regardless of what the config says, since every write
// would fail otherwise.
func Empty(rx, rz int, cfg Config) *Region {
	cfg.CreateChunkIfMissing = true
	return &Region{
		chunks: make(map[ChunkPos]*ChunkData),
		rx:     rx,
		rz:     rz,
		cfg:    cfg,
	}
}

// FullEmpty creates a region with every chunk position holding a default
// chunk: air blocks, plains biome, fully generated status.
func FullEmpty(rx, rz int, cfg Config) *Region {
	r := &Region{
		chunks: make(map[ChunkPos]*ChunkData, RegionWidth*RegionWidth),
		rx:     rx,
		rz:     rz,
		cfg:    cfg,
	}
	for x := 0; x < RegionWidth; x++ {
		for z := 0; z < RegionWidth; z++ {
			pos := ChunkPos{x, z}
			r.chunks[pos] = newChunkData(emptyChunk(pos, rx, rz, cfg), nil, cfg.WorldHeight)
		}
	}
	return r
}

// FromChunks creates a region from already parsed chunk NBT trees.
func FromChunks(rx, rz int, chunks map[ChunkPos]Compound, cfg Config) (*Region, error) {
	r := &Region{
		chunks: make(map[ChunkPos]*ChunkData, len(chunks)),
		rx:     rx,
		rz:     rz,
		cfg:    cfg,
	}
	for pos, nbt := range chunks {
		if pos.X() < 0 || pos.X() >= RegionWidth || pos.Z() < 0 || pos.Z() >= RegionWidth {
			return nil, &ChunkOutOfRegionError{X: pos.X(), Z: pos.Z()}
		}
		r.chunks[pos] = newChunkData(nbt, nil, cfg.WorldHeight)
	}
	return r, nil
}

// Config returns the region's configuration.
func (r *Region) Config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Coordinates returns the region's world coordinates.
func (r *Region) Coordinates() (rx, rz int) {
	return r.rx, r.rz
}

// ChunkCount returns how many chunks the region holds.
func (r *Region) ChunkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// Chunk returns the chunk at the given position within the region.
func (r *Region) Chunk(pos ChunkPos) (*ChunkData, error) {
	if pos.X() < 0 || pos.X() >= RegionWidth || pos.Z() < 0 || pos.Z() >= RegionWidth {
		return nil, &ChunkOutOfRegionError{X: pos.X(), Z: pos.Z()}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chunks[pos]
	if !ok {
		return nil, &MissingChunkError{X: pos.X(), Z: pos.Z()}
	}
	return c, nil
}

// SetBlock buffers a block write at region-local coordinates. It returns
// false if a buffered block already exists at those coordinates, in which
// case the earlier write wins.
//
// The block is not applied to the chunk NBT until WriteBlocks is called.
func (r *Region) SetBlock(x, y, z int, block Block) (bool, error) {
	if x < 0 || x >= RegionWidth*ChunkWidth || z < 0 || z >= RegionWidth*ChunkWidth {
		return false, &CoordinatesOutOfRegionError{X: x, Z: z}
	}
	c, err := r.modifiableChunk(ChunkAt(x, z))
	if err != nil {
		return false, err
	}
	return c.SetBlock(x&15, y, z&15, block)
}

// SetBiome buffers a biome write for a cell. It returns false if a buffered
// biome already exists for that cell. The biome is not applied until
// WriteBiomes is called.
func (r *Region) SetBiome(cell BiomeCell, biome string) (bool, error) {
	if cell.Chunk.X() < 0 || cell.Chunk.X() >= RegionWidth || cell.Chunk.Z() < 0 || cell.Chunk.Z() >= RegionWidth {
		return false, &ChunkOutOfRegionError{X: cell.Chunk.X(), Z: cell.Chunk.Z()}
	}
	c, err := r.modifiableChunk(cell.Chunk)
	if err != nil {
		return false, err
	}
	return c.SetBiome(cell, biome)
}

// SetBiomeAt buffers a biome write for the cell containing the region-local
// block coordinates.
func (r *Region) SetBiomeAt(x, y, z int, biome string) (bool, error) {
	cell, err := BiomeCellAt(x, y, z)
	if err != nil {
		return false, err
	}
	return r.SetBiome(cell, biome)
}

// SetSection replaces an entire 16x16x16 section with a uniform block. This
// bypasses the pending buffer and edits the chunk NBT immediately; it is the
// fast path for fills covering whole sections.
func (r *Region) SetSection(pos ChunkPos, sy int, block Block) error {
	if pos.X() < 0 || pos.X() >= RegionWidth || pos.Z() < 0 || pos.Z() >= RegionWidth {
		return &ChunkOutOfRegionError{X: pos.X(), Z: pos.Z()}
	}
	c, err := r.modifiableChunk(pos)
	if err != nil {
		return err
	}
	return c.setSection(pos, sy, block, r.Config())
}

// AllocateBlockBuffer pre-sizes the pending block buckets of every chunk in
// the half-open chunk ranges for every section in the half-open section
// range, so later edits do not reallocate under high throughput.
func (r *Region) AllocateBlockBuffer(cxRange, czRange, syRange [2]int, perSection int) error {
	for cx := cxRange[0]; cx < cxRange[1]; cx++ {
		for cz := czRange[0]; cz < czRange[1]; cz++ {
			c, err := r.modifiableChunk(ChunkPos{cx, cz})
			if err != nil {
				return err
			}
			c.allocateBlocks(syRange[0], syRange[1], perSection)
		}
	}
	return nil
}

// AllocateBiomeBuffer is the biome counterpart of AllocateBlockBuffer.
func (r *Region) AllocateBiomeBuffer(cxRange, czRange, syRange [2]int, perSection int) error {
	for cx := cxRange[0]; cx < cxRange[1]; cx++ {
		for cz := czRange[0]; cz < czRange[1]; cz++ {
			c, err := r.modifiableChunk(ChunkPos{cx, cz})
			if err != nil {
				return err
			}
			c.allocateBiomes(syRange[0], syRange[1], perSection)
		}
	}
	return nil
}

// SetWorldHeight swaps the world height range the region's chunks cover.
// Every chunk's de-duplication bitsets derive their domain from the height,
// so all pending edits are dropped and the bitsets reallocated.
func (r *Region) SetWorldHeight(height cube.Range) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg.WorldHeight = height
	for _, c := range r.chunks {
		c.setWorldHeight(height)
	}
}

// modifiableChunk returns the chunk at pos, synthesizing a default chunk if
// it is missing and the config allows that.
func (r *Region) modifiableChunk(pos ChunkPos) (*ChunkData, error) {
	r.mu.RLock()
	c, ok := r.chunks[pos]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok = r.chunks[pos]; ok {
		return c, nil
	}
	if !r.cfg.CreateChunkIfMissing {
		return nil, &ModifyMissingChunkError{X: pos.X(), Z: pos.Z()}
	}
	c = newChunkData(emptyChunk(pos, r.rx, r.rz, r.cfg), nil, r.cfg.WorldHeight)
	r.chunks[pos] = c
	return c, nil
}

// emptyChunk builds the default chunk template: one section per 16 blocks of
// world height, each holding only air and the plains biome, marked fully
// generated at the minimum supported DataVersion.
func emptyChunk(pos ChunkPos, rx, rz int, cfg Config) Compound {
	sections := make([]any, 0, cfg.sectionCount())
	for i := 0; i < cfg.sectionCount(); i++ {
		sy := cfg.minSection() + i
		sections = append(sections, Compound{
			"Y":      byte(int8(sy)),
			"biomes": Compound{"palette": []any{BiomePlains}},
			"block_states": Compound{
				"palette": []any{Compound{"Name": BlockAir}},
			},
		})
	}
	return Compound{
		"Status":         RequiredStatus,
		"DataVersion":    int32(MinDataVersion),
		"xPos":           int32(rx*RegionWidth + pos.X()),
		"zPos":           int32(rz*RegionWidth + pos.Z()),
		"sections":       sections,
		"block_entities": []any{},
		"isLightOn":      byte(0),
	}
}
