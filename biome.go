package anvil

// Biomes are stored at a quarter of the block resolution: every section is a
// 4x4x4 grid of biome cells. All biome specific types and conversions live
// here; the packed data codec and palette compaction are shared with blocks.

// BiomeCell addresses a single 4x4x4 biome cell within a region by the chunk
// holding it, the section y index and the cell position within that section.
type BiomeCell struct {
	// Chunk is the chunk position within the region, both axes in [0, 32).
	Chunk ChunkPos
	// Section is the section y index, i.e. block y >> 4.
	Section int
	// Cell is the cell position within the section, all axes in [0, 4).
	Cell [3]int
}

// BiomeWithCell pairs a biome identifier with the cell it was read from or
// written to.
type BiomeWithCell struct {
	Cell BiomeCell
	ID   string
}

// NewBiomeCell creates a BiomeCell, validating that the chunk lies within
// the region and the cell within its section.
func NewBiomeCell(chunk ChunkPos, section int, cell [3]int) (BiomeCell, error) {
	if chunk.X() < 0 || chunk.X() >= RegionWidth || chunk.Z() < 0 || chunk.Z() >= RegionWidth {
		return BiomeCell{}, &ChunkOutOfRegionError{X: chunk.X(), Z: chunk.Z()}
	}
	for _, c := range cell {
		if c < 0 || c >= BiomeCellWidth {
			return BiomeCell{}, &OutOfBoundsError{Len: BiomeCellWidth, Index: c}
		}
	}
	return BiomeCell{Chunk: chunk, Section: section, Cell: cell}, nil
}

// BiomeCellAt returns the biome cell containing the region-local block
// coordinates.
func BiomeCellAt(x, y, z int) (BiomeCell, error) {
	if x < 0 || x >= RegionWidth*ChunkWidth || z < 0 || z >= RegionWidth*ChunkWidth {
		return BiomeCell{}, &CoordinatesOutOfRegionError{X: x, Z: z}
	}
	return BiomeCell{
		Chunk:   ChunkAt(x, z),
		Section: SectionAt(y),
		Cell:    [3]int{(x & 15) / BiomeCellWidth, (y & 15) / BiomeCellWidth, (z & 15) / BiomeCellWidth},
	}, nil
}

// Coords returns the region-local block coordinates of the cell's corner
// nearest the origin.
func (c BiomeCell) Coords() Coords {
	return Coords{
		X: c.Chunk.X()*ChunkWidth + c.Cell[0]*BiomeCellWidth,
		Y: c.Section*ChunkWidth + c.Cell[1]*BiomeCellWidth,
		Z: c.Chunk.Z()*ChunkWidth + c.Cell[2]*BiomeCellWidth,
	}
}

// index returns the cell's position within its section's packed biome data.
func (c BiomeCell) index() int {
	return c.Cell[0] + c.Cell[2]*BiomeCellWidth + c.Cell[1]*BiomeCellWidth*BiomeCellWidth
}
