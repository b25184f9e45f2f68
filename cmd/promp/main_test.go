package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func writeLine(t *testing.T, dir string, offset float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("phase,y\n")
	for i := 0; i <= 20; i++ {
		p := float64(i) / 20
		fmt.Fprintf(&b, "%v,%v\n", p, p+offset)
	}
	path := filepath.Join(dir, fmt.Sprintf("demo_%v.csv", offset))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := run(context.Background(), args, &out); err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

// predicted returns the mean column of a single-row prediction.
func predicted(t *testing.T, output string) float64 {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(output)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("unexpected prediction output:\n%s", output)
	}
	v, err := strconv.ParseFloat(rows[1][1], 64)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PROMP_STORE", "bolt")
	t.Setenv("PROMP_DB_PATH", filepath.Join(dir, "promp.db"))

	var demos []string
	for _, offset := range []float64{0, 0.2, 0.4} {
		demos = append(demos, writeLine(t, dir, offset))
	}
	runCmd(t, append([]string{"fit", "-name", "reach"}, demos...)...)

	mean := predicted(t, runCmd(t, "predict", "-name", "reach", "-phases", "0.5"))
	if !scalar.EqualWithinAbs(mean, 0.7, 1e-2) {
		t.Errorf("predicted mean %v, want 0.7", mean)
	}

	runCmd(t, "condition", "-name", "reach", "-as", "reach-up", "-phase", "1", "-target", "5")
	mean = predicted(t, runCmd(t, "predict", "-name", "reach-up", "-phases", "1"))
	if !scalar.EqualWithinAbs(mean, 5, 1e-6) {
		t.Errorf("conditioned mean %v, want 5", mean)
	}

	samples := runCmd(t, "sample", "-name", "reach", "-n", "2", "-points", "5", "-seed", "7")
	if rows := strings.Count(samples, "\n"); rows != 11 {
		t.Errorf("%d sample rows, want a header and 10 rows", rows)
	}

	got := strings.Fields(runCmd(t, "classify", writeLine(t, dir, 0.1)))
	if len(got) != 2 || got[0] != "reach" {
		t.Errorf("classified as %v", got)
	}

	exported := filepath.Join(dir, "reach.json")
	runCmd(t, "export", "-name", "reach", "-out", exported)
	id := strings.TrimSpace(runCmd(t, "import", "-in", exported, "-name", "reach-copy"))

	list := runCmd(t, "list")
	for _, name := range []string{"reach", "reach-up", "reach-copy", "conditioned"} {
		if !strings.Contains(list, name) {
			t.Errorf("list is missing %q:\n%s", name, list)
		}
	}

	runCmd(t, "delete", "-id", id)
	if err := run(context.Background(), []string{"delete", "-id", id}, &bytes.Buffer{}); err == nil {
		t.Error("expected an error deleting a missing record")
	}
}

func TestRunErrors(t *testing.T) {
	t.Setenv("PROMP_STORE", "memory")
	for _, args := range [][]string{
		nil,
		{"bogus"},
		{"fit", "-name", "x"},
		{"predict", "-name", "missing"},
		{"delete", "-id", "not-a-uuid"},
	} {
		if err := run(context.Background(), args, &bytes.Buffer{}); err == nil {
			t.Errorf("run %v: expected an error", args)
		}
	}
}
