// Package world drives the anvil edit engine across a whole world
// directory: it resolves dimension region paths, buffers setblock and fill
// operations, splits them over the region files they touch and flushes each
// touched region through the core engine.
package world

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/anvil"
)

// Dimension selects which dimension of a world an operation applies to.
type Dimension int

const (
	// Overworld is the default dimension, stored under region/.
	Overworld Dimension = iota
	// Nether is stored under DIM-1/region.
	Nether
	// End is stored under DIM1/region.
	End
)

// String returns the dimension's name.
func (d Dimension) String() string {
	switch d {
	case Nether:
		return "nether"
	case End:
		return "end"
	default:
		return "overworld"
	}
}

// regionDir returns the directory holding the dimension's region files.
func (d Dimension) regionDir(root string) string {
	switch d {
	case Nether:
		return filepath.Join(root, "DIM-1", "region")
	case End:
		return filepath.Join(root, "DIM1", "region")
	default:
		return filepath.Join(root, "region")
	}
}

// Operation is a buffered edit: a block applied to an inclusive box of world
// coordinates. A setblock is a fill whose box is a single block.
type Operation struct {
	From, To cube.Pos
	Block    anvil.Block
}

// Setblock creates an operation placing a single block.
func Setblock(pos cube.Pos, block anvil.Block) Operation {
	return Operation{From: pos, To: pos, Block: block}
}

// Fill creates an operation filling the box spanned by two corners. The
// corners may be given in any order.
func Fill(from, to cube.Pos, block anvil.Block) Operation {
	for i := range from {
		if from[i] > to[i] {
			from[i], to[i] = to[i], from[i]
		}
	}
	return Operation{From: from, To: to, Block: block}
}

// World is a world directory with buffered edit operations. Operations are
// collected with Push and applied to the region files by Flush.
type World struct {
	mu  sync.Mutex
	dir string
	cfg anvil.Config
	ops map[Dimension][]Operation

	// Background flush subsystem
	flushCh chan struct{} // Non-blocking flush trigger channel
	stopCh  chan struct{} // Stop signal for the background flusher
}

// Open wraps a world directory. The directory is not touched until the
// first Flush, LevelDat or SetLevelDat call.
func Open(dir string, cfg anvil.Config) *World {
	return &World{
		dir: dir,
		cfg: cfg,
		ops: make(map[Dimension][]Operation),
	}
}

// Dir returns the world directory.
func (w *World) Dir() string { return w.dir }

// Push buffers an operation for a dimension.
func (w *World) Push(dim Dimension, op Operation) {
	w.mu.Lock()
	w.ops[dim] = append(w.ops[dim], op)
	w.mu.Unlock()
}

// Pending returns how many operations are buffered.
func (w *World) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, ops := range w.ops {
		n += len(ops)
	}
	return n
}

// Flush applies all buffered operations to the region files they touch.
// Operations are grouped per region file; each file is read once, edited
// through the core engine and written back. The buffered operations are
// taken up front, so a failing flush drops them.
func (w *World) Flush() error {
	w.mu.Lock()
	ops := w.ops
	w.ops = make(map[Dimension][]Operation)
	cfg := w.cfg
	w.mu.Unlock()

	for dim, dimOps := range ops {
		for regionPos, regionOps := range splitByRegion(dimOps) {
			if err := w.flushRegion(dim, regionPos, regionOps, cfg); err != nil {
				return fmt.Errorf("flush %s region (%d, %d): %w", dim, regionPos[0], regionPos[1], err)
			}
		}
	}
	return nil
}

// flushRegion loads one region file, applies the operations clipped to it
// and writes the file back.
func (w *World) flushRegion(dim Dimension, regionPos [2]int, ops []Operation, cfg anvil.Config) error {
	rx, rz := regionPos[0], regionPos[1]
	path := filepath.Join(dim.regionDir(w.dir), fmt.Sprintf("r.%d.%d.mca", rx, rz))

	region, err := w.loadRegion(path, rx, rz, cfg)
	if err != nil {
		return err
	}

	for _, op := range ops {
		if err := applyToRegion(region, rx, rz, op); err != nil {
			return err
		}
	}
	if err := region.WriteBlocks(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create region directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := region.Encode(f); err != nil {
		_ = f.Close() // Ignore error on cleanup path
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// loadRegion reads a region file, synthesizing an empty region when the
// file does not exist yet and the config permits creating chunks.
func (w *World) loadRegion(path string, rx, rz int, cfg anvil.Config) (*anvil.Region, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && cfg.CreateChunkIfMissing {
			return anvil.Empty(rx, rz, cfg), nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	region, err := anvil.Decode(f, rx, rz, cfg)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return region, nil
}

// EnableBackgroundFlushes starts a background goroutine that coalesces
// flush requests and applies buffered operations asynchronously.
func (w *World) EnableBackgroundFlushes() {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Already running.
	if w.flushCh != nil && w.stopCh != nil {
		return
	}
	w.flushCh = make(chan struct{}, 1)
	w.stopCh = make(chan struct{})

	go w.runFlusher(w.flushCh, w.stopCh)
}

// DisableBackgroundFlushes stops the background flush goroutine.
func (w *World) DisableBackgroundFlushes() {
	w.mu.Lock()
	stop := w.stopCh
	// Set to nil to prevent double-close and mark as disabled
	w.stopCh = nil
	w.flushCh = nil
	w.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}

// FlushAsync schedules a background flush and returns immediately. If the
// background flusher is not enabled, this is a no-op.
func (w *World) FlushAsync() {
	w.mu.Lock()
	ch := w.flushCh
	w.mu.Unlock()

	if ch == nil {
		return
	}
	// Non-blocking signal: coalesce multiple flush requests.
	select {
	case ch <- struct{}{}:
	default:
	}
}

// runFlusher processes asynchronous flush requests.
func (w *World) runFlusher(flush, stop chan struct{}) {
	for {
		select {
		case <-flush:
			// Coalesce multiple quick-fire requests into one flush.
		coalesce:
			for {
				select {
				case <-flush:
					continue
				default:
					break coalesce
				}
			}
			_ = w.Flush()
		case <-stop:
			return
		}
	}
}
