package anvil

import (
	"fmt"
	"iter"

	"github.com/bits-and-blooms/bitset"
	"github.com/df-mc/dragonfly/server/block/cube"
)

// vacant marks a cell in a PalettedBlocks that holds no block.
const vacant = ^uint32(0)

// PalettedBlocks is the result set of a bulk block read. Instead of
// materializing a Block per queried coordinate it stores, per cell, which
// section palette the block lives in and its index within that palette;
// palettes are referenced from the chunk NBT rather than copied. A
// region-wide query therefore costs four bytes per coordinate plus an
// occupancy bitset, rather than hundreds of megabytes of block values.
//
// The referenced chunks are pinned while the result set is alive: flushing
// new edits into them fails with an AliasedChunkError until Release is
// called.
type PalettedBlocks struct {
	// palettes are the referenced section palettes with a count of how many
	// cells point into each. An entry whose count reaches zero is dropped
	// and later handles shift down.
	palettes []paletteEntry
	// cells packs, per coordinate, the palette handle in the low 16 bits
	// and the index within that palette in the high 16 bits. A palette
	// holds at most 4096 entries and a region at most 24576 sections, so
	// both halves fit comfortably.
	cells []uint32
	// placed has one bit per cell; a set bit means the cell holds a value
	// other than the vacant sentinel. Counting and iterating bits is far
	// cheaper than scanning cells.
	placed *bitset.BitSet

	bottomY int
	width   int

	pinned []*ChunkData
}

type paletteEntry struct {
	blocks []any
	refs   int
}

// newPalettedBlocks allocates a result set covering width*height*width
// cells. The cell array is the dominant allocation: a full region at the
// default world height sits around 400 MiB.
func newPalettedBlocks(height cube.Range, width int) *PalettedBlocks {
	cells := width * (height.Height() + 1) * width
	p := &PalettedBlocks{
		palettes: make([]paletteEntry, 0, 4),
		cells:    make([]uint32, cells),
		placed:   bitset.New(uint(cells)),
		bottomY:  height.Min(),
		width:    width,
	}
	for i := range p.cells {
		p.cells[i] = vacant
	}
	return p
}

// index maps coordinates onto the cell array.
func (p *PalettedBlocks) index(c Coords) int {
	return (c.Y-p.bottomY)*p.width*p.width + c.Z*p.width + c.X
}

// coordsAt maps a cell index back to its coordinates.
func (p *PalettedBlocks) coordsAt(index int) Coords {
	y := index / (p.width * p.width)
	z := (index - y*p.width*p.width) / p.width
	x := index - y*p.width*p.width - z*p.width
	return Coords{X: x, Y: y + p.bottomY, Z: z}
}

// packCell combines a palette handle and an index within that palette into
// one cell value.
func packCell(palette, index uint16) uint32 {
	return uint32(index)<<16 | uint32(palette)
}

// unpackCell splits a cell value back into palette handle and index.
func unpackCell(v uint32) (palette, index uint16) {
	return uint16(v), uint16(v >> 16)
}

// addPalette registers a section palette and returns its handle. GetBlocks
// visits every section exactly once, so no duplicate search is needed; the
// entry starts at zero references and the first insertAt bumps it.
func (p *PalettedBlocks) addPalette(blocks []any) uint16 {
	p.palettes = append(p.palettes, paletteEntry{blocks: blocks})
	return uint16(len(p.palettes) - 1)
}

// insertAt stores a palette reference for the given coordinates.
func (p *PalettedBlocks) insertAt(c Coords, palette uint16, index uint16) {
	p.palettes[palette].refs++
	cell := p.index(c)
	p.cells[cell] = packCell(palette, index)
	p.placed.Set(uint(cell))
}

// Len returns how many cells hold a block.
func (p *PalettedBlocks) Len() int {
	return int(p.placed.Count())
}

// Contains reports whether any cell resolves to the given block.
func (p *PalettedBlocks) Contains(block Block) bool {
	for _, b := range p.Blocks {
		if b.Equal(block) {
			return true
		}
	}
	return false
}

// Get decodes the block at the given coordinates. The second return value
// is false if the result set holds nothing there.
func (p *PalettedBlocks) Get(c Coords) (Block, bool, error) {
	cell := p.index(c)
	if cell < 0 || cell >= len(p.cells) {
		return Block{}, false, &OutOfBoundsError{Len: len(p.cells), Index: cell}
	}
	v := p.cells[cell]
	if v == vacant {
		return Block{}, false, nil
	}
	palette, index := unpackCell(v)
	entry, err := p.paletteBlock(palette, index)
	if err != nil {
		return Block{}, false, err
	}
	block, err := blockFromCompound(entry)
	if err != nil {
		return Block{}, false, err
	}
	return block, true, nil
}

// Remove drops the cell at the given coordinates and returns the block it
// held. When the cell was the last reference into its palette, the palette
// is unlinked from the shared table and later handles compact down.
func (p *PalettedBlocks) Remove(c Coords) (Block, error) {
	cell := p.index(c)
	if cell < 0 || cell >= len(p.cells) {
		return Block{}, &OutOfBoundsError{Len: len(p.cells), Index: cell}
	}
	v := p.cells[cell]
	if v == vacant {
		return Block{}, fmt.Errorf("no block recorded at %v", c)
	}
	p.cells[cell] = vacant
	p.placed.Clear(uint(cell))

	palette, index := unpackCell(v)
	entry, err := p.paletteBlock(palette, index)
	if err != nil {
		return Block{}, err
	}
	block, err := blockFromCompound(entry)
	if err != nil {
		return Block{}, err
	}

	p.palettes[palette].refs--
	if p.palettes[palette].refs == 0 {
		p.palettes = append(p.palettes[:palette], p.palettes[palette+1:]...)
		p.shiftHandles(palette)
	}
	return block, nil
}

// All converts the whole result set into a slice of blocks with their
// coordinates.
func (p *PalettedBlocks) All() []BlockWithCoords {
	out := make([]BlockWithCoords, 0, p.Len())
	for c, b := range p.Blocks {
		out = append(out, BlockWithCoords{Coords: c, Block: b})
	}
	return out
}

// Blocks iterates over every occupied cell, decoding blocks on demand.
func (p *PalettedBlocks) Blocks(yield func(Coords, Block) bool) {
	for i, ok := p.placed.NextSet(0); ok; i, ok = p.placed.NextSet(i + 1) {
		palette, index := unpackCell(p.cells[i])
		entry, err := p.paletteBlock(palette, index)
		if err != nil {
			return
		}
		block, err := blockFromCompound(entry)
		if err != nil {
			return
		}
		if !yield(p.coordsAt(int(i)), block) {
			return
		}
	}
}

var _ iter.Seq2[Coords, Block] = (*PalettedBlocks)(nil).Blocks

// Release unpins the chunks whose palettes the result set references. The
// set must not be used afterwards; flushes into those chunks may rewrite the
// palettes it pointed into.
func (p *PalettedBlocks) Release() {
	for _, c := range p.pinned {
		c.pins.Add(-1)
	}
	p.pinned = nil
}

// paletteBlock resolves a palette handle and index to the palette entry
// compound.
func (p *PalettedBlocks) paletteBlock(palette, index uint16) (Compound, error) {
	if int(palette) >= len(p.palettes) {
		return nil, &InvalidPaletteIndexError{Index: int64(palette)}
	}
	blocks := p.palettes[palette].blocks
	if int(index) >= len(blocks) {
		return nil, &OutOfBoundsError{Len: len(blocks), Index: int(index)}
	}
	return asCompound(blocks[index], "palette")
}

// shiftHandles rewrites every occupied cell pointing at a palette past the
// removed handle.
func (p *PalettedBlocks) shiftHandles(removed uint16) {
	for i, ok := p.placed.NextSet(0); ok; i, ok = p.placed.NextSet(i + 1) {
		palette, index := unpackCell(p.cells[i])
		if palette > removed {
			p.cells[i] = packCell(palette-1, index)
		}
	}
}

// pin records that the result set references palettes inside the chunk and
// blocks flushes into it until Release.
func (p *PalettedBlocks) pin(c *ChunkData) {
	c.pins.Add(1)
	p.pinned = append(p.pinned, c)
}
