package config

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/dargueta/easyfs"
	"github.com/dargueta/easyfs/layout"
	"github.com/gocarina/gocsv"
)

// Preset is a named filesystem size that can be given instead of explicit
// geometry.
type Preset struct {
	Name              string `csv:"name"`
	Slug              string `csv:"slug"`
	TotalBlocks       uint32 `csv:"total_blocks"`
	InodeBitmapBlocks uint32 `csv:"inode_bitmap_blocks"`
	Notes             string `csv:"notes"`
}

// SizeBytes gives the size of an image formatted with this preset.
func (p *Preset) SizeBytes() int64 {
	return int64(p.TotalBlocks) * easyfs.BlockSize
}

//go:embed presets.csv
var presetsRawCSV string
var presets map[string]Preset

func init() {
	reader := csv.NewReader(strings.NewReader(presetsRawCSV))
	reader.Comma = '|'

	var rows []Preset
	err := gocsv.UnmarshalCSV(reader, &rows)
	if err != nil {
		panic(fmt.Errorf("failed to decode presets: %w", err))
	}

	presets = make(map[string]Preset, len(rows))
	for i, row := range rows {
		_, exists := presets[row.Slug]
		if exists {
			panic(fmt.Errorf("duplicate definition for preset %q found on row %d", row.Slug, i+1))
		}

		_, err = layout.NewGeometry(row.TotalBlocks, row.InodeBitmapBlocks)
		if err != nil {
			panic(fmt.Errorf("preset %q on row %d is unusable: %w", row.Slug, i+1, err))
		}
		presets[row.Slug] = row
	}
}

// GetPreset returns the preset with the given slug, or fails with
// [easyfs.ErrNotFound].
func GetPreset(slug string) (Preset, error) {
	preset, ok := presets[slug]
	if ok {
		return preset, nil
	}
	return Preset{}, easyfs.ErrNotFound.WithMessage(
		fmt.Sprintf("no preset exists with slug %q", slug),
	)
}

// Presets returns every preset, smallest first.
func Presets() []Preset {
	all := make([]Preset, 0, len(presets))
	for _, preset := range presets {
		all = append(all, preset)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TotalBlocks != all[j].TotalBlocks {
			return all[i].TotalBlocks < all[j].TotalBlocks
		}
		return all[i].Slug < all[j].Slug
	})
	return all
}
