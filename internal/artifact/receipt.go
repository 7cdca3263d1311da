package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ReceiptName is the file written into the buildsafe data dir after a
// confirmed successful build.
const ReceiptName = "last-success.json"

// Receipt records the last confirmed successful build of a workdir. Sweepers
// and later monitors prefer it over re-deriving completion from raw counts.
type Receipt struct {
	JobID         string    `json:"job_id"`
	FinishedAt    time.Time `json:"finished_at"`
	ArtifactCount int       `json:"artifact_count"`
	Commit        string    `json:"commit,omitempty"`
}

func receiptPath(dataDir string) string {
	return filepath.Join(dataDir, ReceiptName)
}

// WriteReceipt persists the receipt atomically into the data dir.
func WriteReceipt(dataDir string, r Receipt) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	tmp := receiptPath(dataDir) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	if err := os.Rename(tmp, receiptPath(dataDir)); err != nil {
		return fmt.Errorf("failed to finalize receipt: %w", err)
	}
	return nil
}

// LoadReceipt reads the receipt from the data dir. A missing receipt returns
// (nil, nil); only unreadable or corrupt receipts are errors.
func LoadReceipt(dataDir string) (*Receipt, error) {
	data, err := os.ReadFile(receiptPath(dataDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse receipt: %w", err)
	}
	return &r, nil
}
