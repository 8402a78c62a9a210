package world

import (
	"github.com/oriumgames/anvil"
)

// Region files are 512x512 blocks; an operation's box may span several of
// them. splitByRegion clips each operation against every region it touches
// so a flush only ever loads a region file once.

const regionBlocks = anvil.RegionWidth * anvil.ChunkWidth

// splitByRegion groups operations by the region files their boxes touch,
// clipping each operation to the region it is grouped under.
func splitByRegion(ops []Operation) map[[2]int][]Operation {
	grouped := make(map[[2]int][]Operation)
	for _, op := range ops {
		rxMin, rzMin := anvil.RegionAt(op.From.X(), op.From.Z())
		rxMax, rzMax := anvil.RegionAt(op.To.X(), op.To.Z())
		for rx := rxMin; rx <= rxMax; rx++ {
			for rz := rzMin; rz <= rzMax; rz++ {
				clipped, ok := clipToRegion(op, rx, rz)
				if !ok {
					continue
				}
				key := [2]int{rx, rz}
				grouped[key] = append(grouped[key], clipped)
			}
		}
	}
	return grouped
}

// clipToRegion intersects an operation's box with one region's footprint.
func clipToRegion(op Operation, rx, rz int) (Operation, bool) {
	minX, minZ := rx*regionBlocks, rz*regionBlocks
	maxX, maxZ := minX+regionBlocks-1, minZ+regionBlocks-1

	clipped := op
	if clipped.From[0] < minX {
		clipped.From[0] = minX
	}
	if clipped.From[2] < minZ {
		clipped.From[2] = minZ
	}
	if clipped.To[0] > maxX {
		clipped.To[0] = maxX
	}
	if clipped.To[2] > maxZ {
		clipped.To[2] = maxZ
	}
	if clipped.From[0] > clipped.To[0] || clipped.From[2] > clipped.To[2] {
		return Operation{}, false
	}
	return clipped, true
}

// applyToRegion writes an already clipped operation into a region. Sections
// fully covered by the box are replaced through the uniform section fast
// path; everything else goes through the per-block buffer.
func applyToRegion(region *anvil.Region, rx, rz int, op Operation) error {
	for y := op.From.Y(); y <= op.To.Y(); y++ {
		for x := op.From.X(); x <= op.To.X(); x++ {
			for z := op.From.Z(); z <= op.To.Z(); z++ {
				if coversSection(op, x, y, z) {
					local := anvil.ToRegionLocal(x, y, z)
					if err := region.SetSection(anvil.ChunkAt(local.X, local.Z), anvil.SectionAt(y), op.Block); err != nil {
						return err
					}
					// The fast path handled the whole 16x16x16 cube; the z
					// loop skips past it here, and the cube's remaining x
					// columns and y layers are skipped by
					// insideHandledSection.
					z += anvil.ChunkWidth - 1
					continue
				}
				if insideHandledSection(op, x, y, z) {
					continue
				}
				local := anvil.ToRegionLocal(x, y, z)
				if _, err := region.SetBlock(local.X, local.Y, local.Z, op.Block); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// coversSection reports whether (x, y, z) is the minimum corner of a
// 16-aligned section cube entirely inside the operation's box.
func coversSection(op Operation, x, y, z int) bool {
	if x&15 != 0 || y&15 != 0 || z&15 != 0 {
		return false
	}
	return x+anvil.ChunkWidth-1 <= op.To.X() &&
		y+anvil.ChunkWidth-1 <= op.To.Y() &&
		z+anvil.ChunkWidth-1 <= op.To.Z()
}

// insideHandledSection reports whether the coordinate lies inside a section
// cube that coversSection already replaced wholesale.
func insideHandledSection(op Operation, x, y, z int) bool {
	sx, sy, sz := x&^15, y&^15, z&^15
	if sx < op.From.X() || sy < op.From.Y() || sz < op.From.Z() {
		return false
	}
	return sx+anvil.ChunkWidth-1 <= op.To.X() &&
		sy+anvil.ChunkWidth-1 <= op.To.Y() &&
		sz+anvil.ChunkWidth-1 <= op.To.Z()
}
