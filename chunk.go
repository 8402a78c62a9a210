package anvil

import (
	"sync"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"
	"github.com/df-mc/dragonfly/server/block/cube"
)

// ChunkData is one chunk of a region: the chunk's NBT tree plus the buffers
// tracking blocks and biomes that have been written but not yet pushed into
// the NBT.
//
// All exported methods are safe for concurrent use; two goroutines editing
// the same chunk serialize on its mutex, edits to different chunks run in
// parallel.
type ChunkData struct {
	mu sync.Mutex

	// nbt is the chunk's full NBT tree. Tags the engine does not model are
	// carried along untouched.
	nbt Compound
	// raw is the original container sector payload (compression tag plus
	// compressed NBT) the chunk was read from, nil for synthesized chunks.
	// Unmodified chunks are written back from it verbatim.
	raw []byte
	// modified is set once nbt no longer matches raw.
	modified bool

	// height is the inclusive block y range the chunk covers. Kept per
	// chunk because the bitset sizes and index math depend on it.
	height cube.Range

	// pendingBlocks buffers block edits per section y until a flush.
	pendingBlocks map[int][]BlockWithCoords
	// seenBlocks has one bit per block in the chunk; a set bit means a
	// pending edit exists for that coordinate already.
	seenBlocks *bitset.BitSet

	// pendingBiomes and seenBiomes are the biome counterparts, sized to the
	// chunk's biome cell volume.
	pendingBiomes map[int][]BiomeWithCell
	seenBiomes    *bitset.BitSet

	dirtyBlocks bool
	dirtyBiomes bool

	// pins counts live result sets referencing palettes inside nbt. A flush
	// refuses to rewrite the tree while it is nonzero.
	pins atomic.Int32
}

// newChunkData wraps a chunk NBT tree with empty edit buffers.
func newChunkData(nbt Compound, raw []byte, height cube.Range) *ChunkData {
	return &ChunkData{
		nbt:           nbt,
		raw:           raw,
		height:        height,
		pendingBlocks: make(map[int][]BlockWithCoords),
		seenBlocks:    blockBitset(height),
		pendingBiomes: make(map[int][]BiomeWithCell),
		seenBiomes:    biomeBitset(height),
	}
}

// blockBitset returns a bitset with one bit per block in a chunk of the
// given height. This is the allocation that dominates chunk memory.
func blockBitset(height cube.Range) *bitset.BitSet {
	return bitset.New(uint(ChunkWidth * ChunkWidth * (height.Height() + 1)))
}

// biomeBitset returns a bitset with one bit per biome cell in a chunk of the
// given height.
func biomeBitset(height cube.Range) *bitset.BitSet {
	sections := (height.Height() + 1) / ChunkWidth
	return bitset.New(uint(sections * BiomeSectionVolume))
}

// blockIndex maps chunk-local coordinates onto the seen-block bitset.
func (c *ChunkData) blockIndex(x, y, z int) int {
	yOffset := y - c.height.Min()
	return x + yOffset*ChunkWidth + z*ChunkWidth*(c.height.Height()+1)
}

// biomeIndex maps a biome cell onto the seen-biome bitset.
func (c *ChunkData) biomeIndex(cell BiomeCell) int {
	section := cell.Section - c.height.Min()>>4
	return section*BiomeSectionVolume + cell.index()
}

// SetBlock buffers a block edit at chunk-local coordinates: x and z in
// [0, 16), y anywhere within the chunk's height range. It returns false
// without changing anything if an edit for the coordinate is already
// pending, so the first write to a coordinate wins.
//
// Region.SetBlock picks the right chunk and converts coordinates for you;
// use this directly only when batching edits into a chunk you already hold.
func (c *ChunkData) SetBlock(x, y, z int, block Block) (bool, error) {
	if x < 0 || x >= ChunkWidth || z < 0 || z >= ChunkWidth {
		return false, &CoordinatesOutOfRegionError{X: x, Z: z}
	}
	if y < c.height.Min() || y > c.height.Max() {
		return false, &OutOfBoundsError{Len: c.height.Height() + 1, Index: y - c.height.Min()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	index := uint(c.blockIndex(x, y, z))
	if c.seenBlocks.Test(index) {
		return false, nil
	}
	c.seenBlocks.Set(index)

	section := SectionAt(y)
	c.pendingBlocks[section] = append(c.pendingBlocks[section], BlockWithCoords{
		Coords: Coords{X: x, Y: y, Z: z},
		Block:  block,
	})
	c.dirtyBlocks = true
	return true, nil
}

// SetBiome buffers a biome edit for a cell. It returns false without
// changing anything if an edit for the cell is already pending. The cell's
// chunk coordinates are not consulted; the caller already picked this chunk.
func (c *ChunkData) SetBiome(cell BiomeCell, biome string) (bool, error) {
	if cell.Section < c.height.Min()>>4 || cell.Section > c.height.Max()>>4 {
		return false, &OutOfBoundsError{Len: (c.height.Height() + 1) / ChunkWidth, Index: cell.Section - c.height.Min()>>4}
	}
	biome = normalizeID(biome)

	c.mu.Lock()
	defer c.mu.Unlock()

	index := uint(c.biomeIndex(cell))
	if c.seenBiomes.Test(index) {
		return false, nil
	}
	c.seenBiomes.Set(index)

	c.pendingBiomes[cell.Section] = append(c.pendingBiomes[cell.Section], BiomeWithCell{Cell: cell, ID: biome})
	c.dirtyBiomes = true
	return true, nil
}

// setWorldHeight swaps the chunk's height range and drops all pending edits;
// the bitset domains are derived from the height, so both are reallocated.
func (c *ChunkData) setWorldHeight(height cube.Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = height
	c.pendingBlocks = make(map[int][]BlockWithCoords)
	c.pendingBiomes = make(map[int][]BiomeWithCell)
	c.seenBlocks = blockBitset(height)
	c.seenBiomes = biomeBitset(height)
	c.dirtyBlocks = false
	c.dirtyBiomes = false
}

// allocateBlocks pre-sizes the pending block buckets for a range of section
// y values so a burst of edits does not grow them repeatedly.
func (c *ChunkData) allocateBlocks(syMin, syMax, perSection int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sy := syMin; sy < syMax; sy++ {
		if _, ok := c.pendingBlocks[sy]; !ok {
			c.pendingBlocks[sy] = make([]BlockWithCoords, 0, perSection)
		}
	}
}

// allocateBiomes is the biome counterpart of allocateBlocks.
func (c *ChunkData) allocateBiomes(syMin, syMax, perSection int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sy := syMin; sy < syMax; sy++ {
		if _, ok := c.pendingBiomes[sy]; !ok {
			c.pendingBiomes[sy] = make([]BiomeWithCell, 0, perSection)
		}
	}
}

// validate checks the chunk is in a state the engine may modify.
func (c *ChunkData) validate(pos ChunkPos) error {
	status, err := c.nbt.String("Status")
	if err != nil {
		return err
	}
	if status != RequiredStatus {
		return &NotFullyGeneratedError{Chunk: pos, Status: status}
	}
	version, err := c.nbt.Int("DataVersion")
	if err != nil {
		return err
	}
	if version < MinDataVersion {
		return &UnsupportedVersionError{Chunk: pos, DataVersion: version}
	}
	return nil
}

// sections returns the chunk's section list as compounds.
func (c *ChunkData) sections() ([]Compound, error) {
	list, err := c.nbt.List("sections")
	if err != nil {
		return nil, err
	}
	return compoundList(list, "sections")
}

// section returns the section compound with the given y index.
func (c *ChunkData) section(sy int) (Compound, error) {
	secs, err := c.sections()
	if err != nil {
		return nil, err
	}
	for _, sec := range secs {
		y, err := sec.Byte("Y")
		if err != nil {
			return nil, err
		}
		if int(y) == sy {
			return sec, nil
		}
	}
	return nil, &OutOfBoundsError{Len: len(secs), Index: sy}
}
