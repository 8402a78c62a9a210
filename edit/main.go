// Command edit applies setblock and fill operations to a Minecraft world
// directory through the anvil edit engine.
//
//	edit <world> setblock <x> <y> <z> <block>
//	edit <world> fill <x1> <y1> <z1> <x2> <y2> <z2> <block>
//
// Blocks may carry state properties: "minecraft:campfire[lit=true]".
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/oriumgames/anvil"
	"github.com/oriumgames/anvil/world"
	"github.com/pelletier/go-toml"
	"github.com/sirupsen/logrus"
)

// fileConfig is the optional TOML configuration file.
type fileConfig struct {
	CreateChunkIfMissing bool   `toml:"create_chunk_if_missing"`
	UpdateLighting       bool   `toml:"update_lighting"`
	WorldHeight          [2]int `toml:"world_height"`
	Compression          string `toml:"compression"`
}

func main() {
	log := logrus.New()
	log.Formatter = &logrus.TextFormatter{ForceColors: true}

	configPath := flag.String("config", "", "path to a TOML configuration file")
	dimension := flag.String("dimension", "overworld", "dimension to edit: overworld, nether or end")
	flag.Parse()
	args := flag.Args()

	if len(args) < 2 {
		fmt.Println("Usage: edit <world> setblock <x> <y> <z> <block>")
		fmt.Println("       edit <world> fill <x1> <y1> <z1> <x2> <y2> <z2> <block>")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}
	dim, err := parseDimension(*dimension)
	if err != nil {
		log.Fatalln(err)
	}

	w := world.Open(args[0], cfg)
	switch args[1] {
	case "setblock":
		if len(args) != 6 {
			log.Fatalln("setblock expects <x> <y> <z> <block>")
		}
		pos, err := parsePos(args[2:5])
		if err != nil {
			log.Fatalln(err)
		}
		block, err := parseBlock(args[5])
		if err != nil {
			log.Fatalln(err)
		}
		w.Push(dim, world.Setblock(pos, block))
	case "fill":
		if len(args) != 9 {
			log.Fatalln("fill expects <x1> <y1> <z1> <x2> <y2> <z2> <block>")
		}
		from, err := parsePos(args[2:5])
		if err != nil {
			log.Fatalln(err)
		}
		to, err := parsePos(args[5:8])
		if err != nil {
			log.Fatalln(err)
		}
		block, err := parseBlock(args[8])
		if err != nil {
			log.Fatalln(err)
		}
		w.Push(dim, world.Fill(from, to, block))
	default:
		log.Fatalf("Unknown operation %q", args[1])
	}

	start := time.Now()
	if err := w.Flush(); err != nil {
		log.Fatalf("Flush: %v", err)
	}
	log.Infof("Modified world in %v", time.Since(start))
}

// loadConfig merges an optional TOML file over the default configuration,
// which for this tool also has CreateChunkIfMissing switched on.
func loadConfig(path string) (anvil.Config, error) {
	cfg := anvil.DefaultConfig()
	cfg.CreateChunkIfMissing = true
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	file := fileConfig{
		CreateChunkIfMissing: cfg.CreateChunkIfMissing,
		UpdateLighting:       cfg.UpdateLighting,
		WorldHeight:          [2]int{cfg.WorldHeight.Min(), cfg.WorldHeight.Max()},
		Compression:          "zlib",
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return cfg, err
	}

	cfg.CreateChunkIfMissing = file.CreateChunkIfMissing
	cfg.UpdateLighting = file.UpdateLighting
	cfg.WorldHeight = cube.Range{file.WorldHeight[0], file.WorldHeight[1]}
	switch file.Compression {
	case "gzip":
		cfg.Compression = anvil.CompressionGzip
	case "zlib", "":
		cfg.Compression = anvil.CompressionZlib
	case "none":
		cfg.Compression = anvil.CompressionNone
	default:
		return cfg, fmt.Errorf("unknown compression %q", file.Compression)
	}
	return cfg, nil
}

// parseDimension maps a dimension name to its constant.
func parseDimension(name string) (world.Dimension, error) {
	switch name {
	case "overworld":
		return world.Overworld, nil
	case "nether":
		return world.Nether, nil
	case "end":
		return world.End, nil
	}
	return world.Overworld, fmt.Errorf("unknown dimension %q", name)
}

// parsePos parses three coordinate arguments.
func parsePos(args []string) (cube.Pos, error) {
	var pos cube.Pos
	for i, arg := range args {
		v, err := strconv.Atoi(arg)
		if err != nil {
			return pos, fmt.Errorf("invalid coordinate %q", arg)
		}
		pos[i] = v
	}
	return pos, nil
}

// parseBlock parses a block identifier with optional state properties,
// e.g. "oak_stairs[facing=north,half=bottom]".
func parseBlock(s string) (anvil.Block, error) {
	open := strings.IndexByte(s, '[')
	if open < 0 {
		return anvil.NewBlock(s), nil
	}
	if !strings.HasSuffix(s, "]") {
		return anvil.Block{}, fmt.Errorf("invalid block %q", s)
	}

	props := make(map[string]string)
	for _, pair := range strings.Split(s[open+1:len(s)-1], ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return anvil.Block{}, fmt.Errorf("invalid block property %q", pair)
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return anvil.NewBlockWithProperties(s[:open], props), nil
}
