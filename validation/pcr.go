package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cloudx-io/sealedauction/ledgerapi"
)

// PCRConfigEnv names the environment variable that points at the known PCR
// sets when no path is given explicitly.
const PCRConfigEnv = "SEALEDAUCTION_PCRS"

// LoadPCRsFromFile loads known PCR sets from a JSON file. An empty path
// falls back to $SEALEDAUCTION_PCRS.
func LoadPCRsFromFile(path string) ([]PCRSet, error) {
	if path == "" {
		path = os.Getenv(PCRConfigEnv)
	}
	if path == "" {
		return nil, fmt.Errorf("no PCR config given and %s is not set", PCRConfigEnv)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}

	var config PCRConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}
	if len(config.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets found in config file")
	}
	return config.PCRSets, nil
}

// ValidatePCRs returns the index of the first known set matching PCR0-2, or
// -1. Hex case is ignored.
func ValidatePCRs(pcrs ledgerapi.PCRs, knownSets []PCRSet) (bool, int) {
	for i, known := range knownSets {
		if strings.EqualFold(pcrs.ImageFileHash, known.PCR0) &&
			strings.EqualFold(pcrs.KernelHash, known.PCR1) &&
			strings.EqualFold(pcrs.ApplicationHash, known.PCR2) {
			return true, i
		}
	}
	return false, -1
}
