package world

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/oriumgames/anvil"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// LevelDat returns the root Data compound of the world's level.dat file.
func (w *World) LevelDat() (anvil.Compound, error) {
	f, err := os.Open(w.levelDatPath())
	if err != nil {
		return nil, fmt.Errorf("open level.dat: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompress level.dat: %w", err)
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("read level.dat: %w", err)
	}

	var root map[string]any
	if err := nbt.UnmarshalEncoding(raw, &root, nbt.BigEndian); err != nil {
		return nil, fmt.Errorf("parse level.dat: %w", err)
	}
	return anvil.Compound(root).Compound("Data")
}

// SetLevelDat overwrites the world's level.dat with the given Data
// compound.
func (w *World) SetLevelDat(data anvil.Compound) error {
	raw, err := nbt.MarshalEncoding(map[string]any{"Data": data}, nbt.BigEndian)
	if err != nil {
		return fmt.Errorf("encode level.dat: %w", err)
	}

	f, err := os.Create(w.levelDatPath())
	if err != nil {
		return fmt.Errorf("create level.dat: %w", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(raw); err != nil {
		_ = f.Close() // Ignore error on cleanup path
		return fmt.Errorf("write level.dat: %w", err)
	}
	if err := gz.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("compress level.dat: %w", err)
	}
	return f.Close()
}

// levelDatPath returns the full path to the world's level.dat file.
func (w *World) levelDatPath() string {
	return filepath.Join(w.dir, "level.dat")
}
