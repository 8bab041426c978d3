package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cwbudde/algo-aec/engine"
)

// WriteFilter dumps an exported adaptive filter as indented JSON, suitable
// for offline evaluators and plotting tools.
func WriteFilter(path string, export engine.FilterExport) error {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal filter: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export: write %s: %w", path, err)
	}

	return nil
}
