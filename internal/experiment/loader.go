package experiment

import (
	"encoding/json"
	"fmt"
	"os"
)

// definitionsFile is the on-disk shape of an experiments file. A bare JSON
// array of experiments is also accepted.
type definitionsFile struct {
	Experiments []*Experiment `json:"experiments"`
}

// Parse decodes experiment definitions from JSON, accepting either the
// wrapped file shape or a bare array.
func Parse(b []byte) ([]*Experiment, error) {
	var file definitionsFile
	if err := json.Unmarshal(b, &file); err == nil && len(file.Experiments) > 0 {
		return file.Experiments, nil
	}
	var exps []*Experiment
	if err := json.Unmarshal(b, &exps); err != nil {
		return nil, fmt.Errorf("experiment: parse definitions: %w", err)
	}
	return exps, nil
}

// LoadFile reads experiment definitions from a JSON file.
func LoadFile(path string) ([]*Experiment, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	exps, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return exps, nil
}
