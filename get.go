package anvil

import "github.com/df-mc/dragonfly/server/block/cube"

// Bulk reads group their queries by chunk and section so every touched
// section's packed data is decoded exactly once, no matter how many
// coordinates land in it.

// GetBlock returns the block at region-local coordinates.
func (r *Region) GetBlock(x, y, z int) (Block, error) {
	set, err := r.GetBlocks([]Coords{{X: x, Y: y, Z: z}})
	if err != nil {
		return Block{}, err
	}
	defer set.Release()
	block, ok, err := set.Get(Coords{X: x, Y: y, Z: z})
	if err != nil {
		return Block{}, err
	}
	if !ok {
		return Block{}, &MissingChunkError{X: x / ChunkWidth, Z: z / ChunkWidth}
	}
	return block, nil
}

// GetBlocks reads the blocks at all given region-local coordinates and
// returns them as a paletted result set. The set references palettes inside
// the chunk NBT instead of copying blocks out, and pins the touched chunks;
// call Release once done with it.
func (r *Region) GetBlocks(coords []Coords) (*PalettedBlocks, error) {
	groups, err := groupCoords(coords)
	if err != nil {
		return nil, err
	}

	// The cell array covers the full region footprint but only the y range
	// the queries actually touch; a whole-region query still allocates the
	// whole region's cells.
	result := newPalettedBlocks(queriedRange(groups), RegionWidth*ChunkWidth)
	scratch := make([]int64, SectionVolume)

	for pos, sections := range groups {
		c, err := r.Chunk(pos)
		if err != nil {
			result.Release()
			return nil, err
		}
		if err := c.readBlocks(sections, scratch, result); err != nil {
			result.Release()
			return nil, err
		}
	}
	return result, nil
}

// readBlocks resolves the grouped queries against one chunk, inserting
// palette references into the result set and pinning the chunk.
func (c *ChunkData) readBlocks(queries map[int][]Coords, scratch []int64, result *PalettedBlocks) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sections, err := c.sections()
	if err != nil {
		return err
	}
	for _, section := range sections {
		y, err := section.Byte("Y")
		if err != nil {
			return err
		}
		wanted := queries[int(y)]
		if len(wanted) == 0 {
			continue
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

		handle := result.addPalette(palette)
		for _, q := range wanted {
			index := q.X&15 + (q.Z&15)*ChunkWidth + (q.Y&15)*ChunkWidth*ChunkWidth
			if index >= count {
				return &OutOfBoundsError{Len: count, Index: index}
			}
			paletteIndex := scratch[index]
			if paletteIndex < 0 || paletteIndex >= int64(len(palette)) {
				return &InvalidPaletteIndexError{Index: paletteIndex}
			}
			result.insertAt(q, handle, uint16(paletteIndex))
		}
	}

	result.pin(c)
	return nil
}

// GetBiome returns the biome of a cell.
func (r *Region) GetBiome(cell BiomeCell) (string, error) {
	biomes, err := r.GetBiomes([]BiomeCell{cell})
	if err != nil {
		return "", err
	}
	if len(biomes) == 0 {
		return "", &OutOfBoundsError{Len: 0, Index: cell.Section}
	}
	return biomes[0].ID, nil
}

// GetBiomeAt returns the biome of the cell containing the region-local
// block coordinates.
func (r *Region) GetBiomeAt(x, y, z int) (string, error) {
	cell, err := BiomeCellAt(x, y, z)
	if err != nil {
		return "", err
	}
	return r.GetBiome(cell)
}

// GetBiomes reads the biomes of all given cells. Biome palettes are plain
// identifier strings, so the result is returned directly rather than
// through a result set.
func (r *Region) GetBiomes(cells []BiomeCell) ([]BiomeWithCell, error) {
	groups := make(map[ChunkPos]map[int][]BiomeCell)
	for _, cell := range cells {
		if cell.Chunk.X() < 0 || cell.Chunk.X() >= RegionWidth || cell.Chunk.Z() < 0 || cell.Chunk.Z() >= RegionWidth {
			return nil, &ChunkOutOfRegionError{X: cell.Chunk.X(), Z: cell.Chunk.Z()}
		}
		sections, ok := groups[cell.Chunk]
		if !ok {
			sections = make(map[int][]BiomeCell)
			groups[cell.Chunk] = sections
		}
		sections[cell.Section] = append(sections[cell.Section], cell)
	}

	found := make([]BiomeWithCell, 0, len(cells))
	scratch := make([]int64, BiomeSectionVolume)

	for pos, sections := range groups {
		c, err := r.Chunk(pos)
		if err != nil {
			return nil, err
		}
		read, err := c.readBiomes(sections, scratch)
		if err != nil {
			return nil, err
		}
		found = append(found, read...)
	}
	return found, nil
}

// readBiomes resolves the grouped biome queries against one chunk.
func (c *ChunkData) readBiomes(queries map[int][]BiomeCell, scratch []int64) ([]BiomeWithCell, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sections, err := c.sections()
	if err != nil {
		return nil, err
	}
	var found []BiomeWithCell
	for _, section := range sections {
		y, err := section.Byte("Y")
		if err != nil {
			return nil, err
		}
		wanted := queries[int(y)]
		if len(wanted) == 0 {
			continue
		}

		biomes, err := section.Compound("biomes")
		if err != nil {
			return nil, err
		}
		palette, err := biomes.List("palette")
		if err != nil {
			return nil, err
		}
		var data []int64
		if biomes.Has("data") {
			if data, err = biomes.LongArray("data"); err != nil {
				return nil, err
			}
		}
		count := decodePacked(scratch, biomeBits(len(palette)), data)

		for _, cell := range wanted {
			index := cell.index()
			if index >= count {
				return nil, &OutOfBoundsError{Len: count, Index: index}
			}
			paletteIndex := scratch[index]
			if paletteIndex < 0 || paletteIndex >= int64(len(palette)) {
				return nil, &InvalidPaletteIndexError{Index: paletteIndex}
			}
			id, ok := palette[paletteIndex].(string)
			if !ok {
				return nil, &InvalidListError{Name: "palette"}
			}
			found = append(found, BiomeWithCell{Cell: cell, ID: id})
		}
	}
	return found, nil
}

// queriedRange returns the inclusive block y range spanned by the sections
// the grouped queries touch.
func queriedRange(groups map[ChunkPos]map[int][]Coords) cube.Range {
	first := true
	var min, max int
	for _, sections := range groups {
		for sy := range sections {
			if first || sy < min {
				min = sy
			}
			if first || sy > max {
				max = sy
			}
			first = false
		}
	}
	return cube.Range{min * ChunkWidth, (max+1)*ChunkWidth - 1}
}

// groupCoords buckets region-local coordinates by the chunk and section
// holding them, validating bounds on the way.
func groupCoords(coords []Coords) (map[ChunkPos]map[int][]Coords, error) {
	groups := make(map[ChunkPos]map[int][]Coords)
	for _, c := range coords {
		if c.X < 0 || c.X >= RegionWidth*ChunkWidth || c.Z < 0 || c.Z >= RegionWidth*ChunkWidth {
			return nil, &CoordinatesOutOfRegionError{X: c.X, Z: c.Z}
		}
		pos := ChunkAt(c.X, c.Z)
		sections, ok := groups[pos]
		if !ok {
			sections = make(map[int][]Coords)
			groups[pos] = sections
		}
		sy := SectionAt(c.Y)
		sections[sy] = append(sections[sy], c)
	}
	return groups, nil
}
