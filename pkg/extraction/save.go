package extraction

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/menta2k/entity-extractor/internal/utils"
	"github.com/menta2k/entity-extractor/pkg/types"
)

type savedResult struct {
	Success   bool             `json:"success"`
	Entities  map[string]any   `json:"entities"`
	Error     *string          `json:"error"`
	ImageInfo *types.ImageInfo `json:"image_info"`
	Timestamp string           `json:"timestamp"`
}

// SaveResult writes a result as indented JSON to path.
func SaveResult(result types.ExtractionResult, path string) error {
	out := savedResult{
		Success:   result.Success,
		Entities:  result.Entities,
		ImageInfo: result.ImageInfo,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	}
	if result.Error != "" {
		out.Error = &result.Error
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result file: %w", err)
	}
	return nil
}
