package render

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/stressoor/pkg/summary"
)

// document is the machine readable form of a collection.
type document struct {
	Root    string               `json:"root" yaml:"root"`
	Runs    []*summary.Run       `json:"runs" yaml:"runs"`
	Devices []summary.DeviceStat `json:"devices,omitempty" yaml:"devices,omitempty"`
}

func newDocument(c *summary.Collection) document {
	doc := document{Root: c.Root, Runs: SortRuns(c.Runs)}
	if c.Devices != nil {
		doc.Devices = c.Devices.All()
	}

	return doc
}

// JSON encodes the collection with runs in report order.
func JSON(c *summary.Collection) ([]byte, error) {
	data, err := json.MarshalIndent(newDocument(c), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling json: %w", err)
	}

	return append(data, '\n'), nil
}

// YAML encodes the collection with runs in report order.
func YAML(c *summary.Collection) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(newDocument(c)); err != nil {
		return nil, fmt.Errorf("marshaling yaml: %w", err)
	}

	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshaling yaml: %w", err)
	}

	return buf.Bytes(), nil
}
