package storage

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/san-kum/dynctl/internal/sim"
)

// Export is a run with its full time series, for tools that want one JSON
// document instead of metadata plus CSV.
type Export struct {
	Metadata    RunMetadata `json:"metadata"`
	StateNames  []string    `json:"state_names"`
	Times       []float64   `json:"times"`
	Truth       [][]float64 `json:"truth"`
	Estimates   [][]float64 `json:"estimates"`
	References  [][]float64 `json:"references"`
	Controls    [][]float64 `json:"controls"`
	AtReference []bool      `json:"at_reference"`
}

func ExportJSON(w io.Writer, meta RunMetadata, result *sim.Result) error {
	data := Export{
		Metadata:    meta,
		StateNames:  stateNames,
		Times:       result.Times,
		Truth:       result.Truth,
		Estimates:   result.Estimates,
		References:  result.References,
		Controls:    result.Controls,
		AtReference: result.AtReference,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(data), "encode export")
}
