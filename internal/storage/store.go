package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/sim"
)

var (
	ErrNotFound     = errors.New("storage: run not found")
	ErrDuplicateRun = errors.New("storage: run already exists")
)

// Index is a searchable catalog of saved runs kept next to the files.
type Index interface {
	Record(ctx context.Context, meta RunMetadata) error
}

type Store struct {
	baseDir string
	index   Index
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// WithIndex makes Save also record each run in idx.
func (s *Store) WithIndex(idx Index) *Store {
	s.index = idx
	return s
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID          string             `json:"id"`
	Model       string             `json:"model"`
	Timestamp   time.Time          `json:"timestamp"`
	Params      map[string]float64 `json:"params,omitempty"`
	InitState   []float64          `json:"init_state"`
	Tolerance   float64            `json:"tolerance"`
	InitialStep float64            `json:"initial_step"`
	BlockSize   int                `json:"block_size"`
	Steps       int                `json:"steps"`
	FinalT      float64            `json:"final_t"`
	Final       []float64          `json:"final"`
	Rejections  int                `json:"rejections"`
	Evaluations int                `json:"evaluations"`
	Stopped     string             `json:"stopped"`
	Metrics     map[string]float64 `json:"metrics"`
}

// NewMetadata summarises a finished run. The ID is left empty for Save.
func NewMetadata(model string, cfg sim.Config, result *sim.Result) RunMetadata {
	return RunMetadata{
		Model:       model,
		Timestamp:   time.Now().UTC(),
		Params:      result.Params,
		InitState:   result.Initial,
		Tolerance:   cfg.Tolerance,
		InitialStep: cfg.InitialStep,
		BlockSize:   cfg.BlockSize,
		Steps:       result.StepsTaken,
		FinalT:      result.T,
		Final:       result.Final,
		Rejections:  result.Rejections,
		Evaluations: result.Evaluations,
		Stopped:     string(result.Stopped),
		Metrics:     result.Metrics,
	}
}

// Save writes <base>/<id>/metadata.json and states.csv and returns the new
// run id. The first trace row is the initial condition at t=0. Files are
// written into a hidden directory that is renamed into place, so a failed
// save leaves nothing behind for List to find.
func (s *Store) Save(ctx context.Context, meta RunMetadata, samples []sim.Sample) (string, error) {
	meta.ID = uuid.NewString()
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	runDir := filepath.Join(s.baseDir, meta.ID)

	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return "", err
	}
	tmpDir, err := os.MkdirTemp(s.baseDir, "."+meta.ID+"-")
	if err != nil {
		return "", err
	}

	trace := samples
	if len(meta.InitState) > 0 {
		first := sim.Sample{Y: meta.InitState, HNext: meta.InitialStep}
		trace = append([]sim.Sample{first}, samples...)
	}
	err = writeFile(filepath.Join(tmpDir, "states.csv"), func(w io.Writer) error {
		return WriteTrace(w, trace)
	})
	if err == nil {
		err = writeJSON(filepath.Join(tmpDir, "metadata.json"), meta)
	}
	if err == nil {
		err = os.Rename(tmpDir, runDir)
	}
	if err != nil {
		os.RemoveAll(tmpDir)
		return "", fmt.Errorf("save run %s: %w", meta.ID, err)
	}

	if s.index != nil {
		if err := s.index.Record(ctx, meta); err != nil {
			return meta.ID, fmt.Errorf("index run %s: %w", meta.ID, err)
		}
	}
	return meta.ID, nil
}

// writeFile reports the Close error too; a failed flush loses data.
func writeFile(path string, write func(w io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

func writeJSON(path string, v any) error {
	return writeFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// WriteTrace writes samples as CSV: time,x0..xn,hdid,hnext,rejected.
func WriteTrace(w io.Writer, samples []sim.Sample) error {
	cw := csv.NewWriter(w)

	if len(samples) == 0 {
		cw.Flush()
		return cw.Error()
	}

	header := []string{"time"}
	for i := range samples[0].Y {
		header = append(header, fmt.Sprintf("x%d", i))
	}
	header = append(header, "hdid", "hnext", "rejected")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, smp := range samples {
		row := make([]string, 0, len(header))
		row = append(row, formatFloat(smp.T))
		for _, val := range smp.Y {
			row = append(row, formatFloat(val))
		}
		row = append(row, formatFloat(smp.HDid), formatFloat(smp.HNext), strconv.Itoa(smp.Rejected))
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// List returns saved runs, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// LoadTrace reads states.csv back into samples. Step numbers count rows
// after the initial condition.
func (s *Store) LoadTrace(runID string) ([]sim.Sample, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "states.csv"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
		}
		return nil, err
	}
	defer file.Close()
	return ReadTrace(file)
}

// ReadTrace parses the format written by WriteTrace.
func ReadTrace(r io.Reader) ([]sim.Sample, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []sim.Sample{}, nil
	}

	dim := len(records[0]) - 4
	if dim < 1 {
		return nil, fmt.Errorf("states.csv: header has %d columns", len(records[0]))
	}

	samples := make([]sim.Sample, 0, len(records)-1)
	for i, record := range records[1:] {
		vals := make([]float64, len(record)-1)
		for j := range vals {
			v, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("states.csv row %d col %d: %w", i+2, j+1, err)
			}
			vals[j] = v
		}
		rejected, err := strconv.Atoi(record[len(record)-1])
		if err != nil {
			return nil, fmt.Errorf("states.csv row %d: %w", i+2, err)
		}

		samples = append(samples, sim.Sample{
			Step:     i,
			T:        vals[0],
			Y:        dynamo.State(vals[1 : 1+dim]),
			HDid:     vals[1+dim],
			HNext:    vals[2+dim],
			Rejected: rejected,
		})
	}
	return samples, nil
}
