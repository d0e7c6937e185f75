package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/san-kum/dynctl/internal/drive"
	"github.com/san-kum/dynctl/internal/logging"
	"github.com/san-kum/dynctl/internal/sim"
)

var log = logging.GetLog("storage")

var (
	ErrRunNotFound  = errors.New("storage: run not found")
	ErrInvalidRunID = errors.New("storage: invalid run id")
)

const (
	metadataFile = "metadata.json"
	statesFile   = "states.csv"
)

// Store keeps each run in its own directory under baseDir.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Scenario   string             `json:"scenario"`
	Timestamp  time.Time          `json:"timestamp"`
	Seed       uint64             `json:"seed"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	Integrator string             `json:"integrator"`
	Steps      int                `json:"steps"`
	Metrics    map[string]float64 `json:"metrics"`
	Errors     []string           `json:"errors,omitempty"`
}

// MetadataFor fills the run description from a simulator config.
func MetadataFor(scenario string, cfg sim.Config) RunMetadata {
	return RunMetadata{
		Scenario:   scenario,
		Seed:       cfg.Seed,
		Dt:         cfg.Dt,
		Duration:   cfg.Duration,
		Integrator: cfg.Integrator,
	}
}

var stateNames = []string{"x", "y", "heading", "vl", "vr", "dl", "dr", "verr_l", "verr_r", "werr"}

func header() []string {
	h := []string{"time"}
	for _, n := range stateNames {
		h = append(h, "true_"+n)
	}
	for _, n := range stateNames {
		h = append(h, "est_"+n)
	}
	for _, n := range stateNames[:drive.ControllerStates] {
		h = append(h, "ref_"+n)
	}
	return append(h, "u_left", "u_right", "at_reference")
}

// Save writes metadata.json and states.csv for result and returns the run
// id. An empty meta.ID is generated from the scenario and the clock.
func (s *Store) Save(meta RunMetadata, result *sim.Result) (string, error) {
	now := time.Now()
	if meta.ID == "" {
		meta.ID = fmt.Sprintf("%s_%d", meta.Scenario, now.UnixNano())
	}
	if err := checkID(meta.ID); err != nil {
		return "", err
	}
	meta.Timestamp = now
	meta.Steps = result.StepsTaken
	meta.Metrics = result.Metrics
	for _, e := range result.Errors {
		meta.Errors = append(meta.Errors, e.Error())
	}

	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", errors.Wrap(err, "create run dir")
	}
	if err := writeMetadata(filepath.Join(runDir, metadataFile), meta); err != nil {
		return "", err
	}
	if err := writeStates(filepath.Join(runDir, statesFile), result); err != nil {
		return "", err
	}
	log.Debug("saved run", "id", meta.ID, "rows", len(result.Times))
	return meta.ID, nil
}

func writeMetadata(path string, meta RunMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create metadata")
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(meta), "encode metadata")
}

func writeStates(path string, result *sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create states")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header()); err != nil {
		return errors.Wrap(err, "write header")
	}
	for i := range result.Times {
		row := []string{format(result.Times[i])}
		row = appendRow(row, result.Truth[i])
		row = appendRow(row, result.Estimates[i])
		row = appendRow(row, result.References[i])
		row = appendRow(row, result.Controls[i])
		at := "0"
		if result.AtReference[i] {
			at = "1"
		}
		if err := w.Write(append(row, at)); err != nil {
			return errors.Wrapf(err, "write row %d", i)
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "flush states")
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func appendRow(row []string, vals []float64) []string {
	for _, v := range vals {
		row = append(row, format(v))
	}
	return row
}

// List returns every readable run, oldest first. Directories without
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, errors.Wrap(err, "list runs")
	}

	runs := make([]RunMetadata, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			log.Debug("skipping run", "dir", entry.Name(), "err", err)
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Timestamp.Equal(runs[j].Timestamp) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	if err := checkID(runID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrRunNotFound, runID)
		}
		return nil, errors.Wrap(err, "read metadata")
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "decode metadata for %s", runID)
	}
	return &meta, nil
}

// LoadStates reads states.csv back into a Result. Metrics and errors live
// in the metadata and are not restored.
func (s *Store) LoadStates(runID string) (*sim.Result, error) {
	if err := checkID(runID); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.baseDir, runID, statesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrRunNotFound, runID)
		}
		return nil, errors.Wrap(err, "open states")
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read states for %s", runID)
	}
	if len(records) == 0 {
		return nil, errors.Errorf("storage: %s has no header", runID)
	}
	if got, want := len(records[0]), len(header()); got != want {
		return nil, errors.Errorf("storage: %s has %d columns, want %d", runID, got, want)
	}

	rows := records[1:]
	res := &sim.Result{
		Times:       make([]float64, 0, len(rows)),
		Truth:       make([][]float64, 0, len(rows)),
		Estimates:   make([][]float64, 0, len(rows)),
		References:  make([][]float64, 0, len(rows)),
		Controls:    make([][]float64, 0, len(rows)),
		AtReference: make([]bool, 0, len(rows)),
		Metrics:     map[string]float64{},
		StepsTaken:  len(rows),
	}
	for i, record := range rows {
		vals := make([]float64, len(record)-1)
		for j := range vals {
			if vals[j], err = strconv.ParseFloat(record[j], 64); err != nil {
				return nil, errors.Wrapf(err, "row %d column %d", i+1, j)
			}
		}
		n := drive.NumStates
		res.Times = append(res.Times, vals[0])
		res.Truth = append(res.Truth, vals[1:1+n])
		res.Estimates = append(res.Estimates, vals[1+n:1+2*n])
		refEnd := 1 + 2*n + drive.ControllerStates
		res.References = append(res.References, vals[1+2*n:refEnd])
		res.Controls = append(res.Controls, vals[refEnd:refEnd+drive.NumInputs])
		res.AtReference = append(res.AtReference, record[len(record)-1] == "1")
	}
	return res, nil
}

func checkID(runID string) error {
	if runID == "" || runID == "." || runID == ".." || filepath.Base(runID) != runID {
		return errors.Wrapf(ErrInvalidRunID, "%q", runID)
	}
	return nil
}
