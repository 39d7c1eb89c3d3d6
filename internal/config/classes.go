package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"

	"animalcensus/internal/models"

	"gopkg.in/yaml.v3"
)

// ClassEntry is one class in the whitelist file.
type ClassEntry struct {
	CocoID int    `yaml:"coco_id"`
	Name   string `yaml:"name"`
	Color  []int  `yaml:"color"` // [B, G, R] jak w OpenCV
}

type classesFile struct {
	Classes []ClassEntry `yaml:"classes"`
}

// DefaultClasses are the COCO animal classes (ids 17-23).
var DefaultClasses = []ClassEntry{
	{CocoID: 17, Name: "horse", Color: []int{0, 165, 255}},
	{CocoID: 18, Name: "sheep", Color: []int{255, 255, 255}},
	{CocoID: 19, Name: "cow", Color: []int{42, 42, 165}},
	{CocoID: 20, Name: "elephant", Color: []int{128, 128, 128}},
	{CocoID: 21, Name: "bear", Color: []int{19, 69, 139}},
	{CocoID: 22, Name: "zebra", Color: []int{0, 0, 0}},
	{CocoID: 23, Name: "giraffe", Color: []int{0, 215, 255}},
}

// LoadClasses reads the whitelist from a YAML file. A missing file yields DefaultClasses.
func LoadClasses(path string) (*models.Whitelist, error) {
	entries := DefaultClasses

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read classes file: %w", err)
	default:
		var f classesFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse classes file: %w", err)
		}
		entries = f.Classes
	}

	specs := make([]models.ClassSpec, 0, len(entries))
	for _, e := range entries {
		clr, err := toRGBA(e.Color)
		if err != nil {
			return nil, fmt.Errorf("class %q: %w", e.Name, err)
		}
		specs = append(specs, models.ClassSpec{CocoID: e.CocoID, Name: e.Name, Color: clr})
	}

	return models.NewWhitelist(specs)
}

func toRGBA(bgr []int) (color.RGBA, error) {
	if len(bgr) == 0 {
		return color.RGBA{R: 255, G: 255, B: 255, A: 255}, nil
	}
	if len(bgr) != 3 {
		return color.RGBA{}, fmt.Errorf("color must have 3 components, got %d", len(bgr))
	}
	for _, c := range bgr {
		if c < 0 || c > 255 {
			return color.RGBA{}, fmt.Errorf("color component %d out of range", c)
		}
	}
	return color.RGBA{R: uint8(bgr[2]), G: uint8(bgr[1]), B: uint8(bgr[0]), A: 255}, nil
}
