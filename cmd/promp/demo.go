package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lucasmaystre/gopromp/traj"
	"gonum.org/v1/gonum/mat"
)

// readDemonstration parses CSV rows of the form "x,v1,...,vD", where x is a
// phase, or a time when timed is set. A first row that does not parse as
// numbers is taken as a header.
func readDemonstration(in io.Reader, timed bool) (*traj.Demonstration, error) {
	reader := csv.NewReader(in)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var xs []float64
	var values [][]float64
	for i, record := range records {
		if len(record) < 2 {
			return nil, fmt.Errorf("row %d: need a phase and at least one value", i+1)
		}
		row, err := parseFloats(record)
		if err != nil {
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		xs = append(xs, row[0])
		values = append(values, row[1:])
	}
	if timed {
		return traj.NewTimedDemonstration(xs, values)
	}
	return traj.NewDemonstration(xs, values)
}

func readDemonstrationFile(path string, timed bool) (*traj.Demonstration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	demo, err := readDemonstration(f, timed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return demo, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// parseList parses a comma separated list of numbers.
func parseList(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return parseFloats(strings.Split(s, ","))
}

// writeRows writes one CSV row per phase: the phase followed by the columns
// of every vector.
func writeRows(out io.Writer, header []string, phases []float64, cols ...[]*mat.VecDense) error {
	writer := csv.NewWriter(out)
	if header != nil {
		if err := writer.Write(header); err != nil {
			return err
		}
	}
	for i, phase := range phases {
		row := []string{formatFloat(phase)}
		for _, col := range cols {
			for _, v := range col[i].RawVector().Data {
				row = append(row, formatFloat(v))
			}
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
