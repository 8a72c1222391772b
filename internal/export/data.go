package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/san-kum/lorenz/internal/sim"
	"github.com/san-kum/lorenz/internal/storage"
)

type ExportData struct {
	Run    storage.RunMetadata `json:"run"`
	Times  []float64           `json:"times"`
	States [][]float64         `json:"states"`
	HDid   []float64           `json:"hdid"`
}

func NewExportData(meta storage.RunMetadata, samples []sim.Sample) ExportData {
	data := ExportData{
		Run:    meta,
		Times:  make([]float64, len(samples)),
		States: make([][]float64, len(samples)),
		HDid:   make([]float64, len(samples)),
	}
	for i, s := range samples {
		data.Times[i] = s.T
		data.States[i] = s.Y
		data.HDid[i] = s.HDid
	}
	return data
}

func WriteJSON(w io.Writer, meta storage.RunMetadata, samples []sim.Sample) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(meta, samples))
}

func ExportJSON(path string, meta storage.RunMetadata, samples []sim.Sample) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return WriteJSON(file, meta, samples)
}

// WriteCSV writes time and state only, with the given column names for
// the state components (x0, x1, ... when names is short).
func WriteCSV(w io.Writer, samples []sim.Sample, names ...string) error {
	cw := csv.NewWriter(w)
	if len(samples) == 0 {
		cw.Flush()
		return cw.Error()
	}

	header := []string{"t"}
	for i := range samples[0].Y {
		if i < len(names) {
			header = append(header, names[i])
		} else {
			header = append(header, fmt.Sprintf("x%d", i))
		}
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, s := range samples {
		row[0] = strconv.FormatFloat(s.T, 'g', -1, 64)
		for i, v := range s.Y {
			row[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePoints writes one "x y z" line per sample with every component
// multiplied by scale, a layout gnuplot's splot reads directly.
func WritePoints(w io.Writer, samples []sim.Sample, scale float64) error {
	buf := make([]byte, 0, 64)
	for _, s := range samples {
		buf = buf[:0]
		for i, v := range s.Y {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = strconv.AppendFloat(buf, v*scale, 'g', 8, 64)
		}
		buf = append(buf, '\n')
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
