// Package anvil implements an in-memory edit engine for Minecraft's Anvil
// region format. A Region holds a 32x32 grid of chunk NBT trees; callers
// buffer block and biome mutations at arbitrary coordinates and flush them
// into the chunk NBT in one batched, per-chunk parallel pass.
//
// The typical flow is:
//
//	region := anvil.FullEmpty(0, 0, anvil.DefaultConfig())
//	region.SetBlock(5, 97, 385, anvil.NewBlock("dirt"))
//	region.WriteBlocks()
//	region.Encode(f)
//
// Note: the engine keeps every chunk of a region in memory, so it is meant
// for bulk offline edits rather than live serving.
package anvil

// RegionWidth is how many chunks wide and long a region is.
const RegionWidth = 32

// ChunkWidth is how many blocks wide a chunk is. Also how wide and tall a
// single section is.
const ChunkWidth = 16

// SectionVolume is the number of block indices stored in one section's
// packed block_states data.
const SectionVolume = ChunkWidth * ChunkWidth * ChunkWidth

// BiomeCellWidth is the edge length of a biome cell in blocks. Biomes are
// stored at a quarter of the block resolution.
const BiomeCellWidth = 4

// BiomeSectionVolume is the number of biome cell indices stored in one
// section's packed biomes data.
const BiomeSectionVolume = BiomeCellWidth * BiomeCellWidth * BiomeCellWidth

// MinDataVersion is the lowest chunk DataVersion the engine will modify.
// The versioned section layout (block_states/biomes with palettes) and the
// isLightOn byte were introduced in 1.18, DataVersion 2860.
const MinDataVersion = 2860

// RequiredStatus is the chunk generation status required for modification.
const RequiredStatus = "minecraft:full"

// BlockAir is the block every synthesized chunk is filled with.
const BlockAir = "minecraft:air"

// BiomePlains is the biome every synthesized chunk is filled with.
const BiomePlains = "minecraft:plains"

// maxBlockBits is the widest supported block index. A section holds 4096
// blocks, so a palette can never hold more distinct entries than that.
const maxBlockBits = 12
