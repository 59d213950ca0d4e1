package convert

import (
	"path/filepath"

	"github.com/hyperjump/pachat/internal/config"
	"github.com/hyperjump/pachat/pkg/utils"
)

// Layout locates the side-car files the scripts write under the output directory.
type Layout struct {
	OutputDir  string
	PagesDir   string
	PageMapDir string
	APIListDir string
	APISpecDir string
}

// NewLayout reads directory names from cfg.
func NewLayout(cfg config.ConvertConfig) Layout {
	return Layout{
		OutputDir:  cfg.OutputDir,
		PagesDir:   cfg.PagesDir,
		PageMapDir: cfg.PageMapDir,
		APIListDir: cfg.APIListDir,
		APISpecDir: cfg.APISpecDir,
	}
}

// PageImageDir is where the page images of input are written.
func (l Layout) PageImageDir(input string) string {
	return filepath.Join(l.OutputDir, l.PagesDir, utils.FileStem(input))
}

// PageMapFile is the page → PA number map of input.
func (l Layout) PageMapFile(input string) string {
	return filepath.Join(l.OutputDir, l.PageMapDir, utils.FileStem(input)+"_pa_number.txt")
}

// APIListFile is the API list JSON extracted from input.
func (l Layout) APIListFile(input string) string {
	return filepath.Join(l.OutputDir, l.APIListDir, utils.FileStem(input)+".json")
}

// APISpecFile is the API specification JSON extracted from input.
func (l Layout) APISpecFile(input string) string {
	return filepath.Join(l.OutputDir, l.APISpecDir, utils.FileStem(input)+".json")
}
