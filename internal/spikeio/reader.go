// Package spikeio reads spike trains and network parameters from the plain
// text formats produced by the MNIST encoder, and writes spike counters.
package spikeio

import (
	"archive/zip"
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var ErrFormat = errors.New("malformed input")

const maxLineBytes = 4 << 20

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return sc
}

// ReadInputSpikes reads one line per instant, one '0'/'1' character per
// input line. Every instants lines form one cycle; the result is indexed
// [cycle][input][instant]. cycles <= 0 reads every complete cycle.
func ReadInputSpikes(r io.Reader, inputs, instants, cycles int) ([][][]uint8, error) {
	if inputs <= 0 || instants <= 0 {
		return nil, fmt.Errorf("%w: inputs=%d instants=%d", ErrFormat, inputs, instants)
	}

	var (
		out     [][][]uint8
		current = newMatrix(inputs, instants)
		t       int
		lineNo  int
	)
	sc := newScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		if len(line) != inputs {
			return nil, fmt.Errorf("%w: line %d has %d spikes, want %d", ErrFormat, lineNo, len(line), inputs)
		}
		for j := 0; j < len(line); j++ {
			switch line[j] {
			case '0':
			case '1':
				current[j][t] = 1
			default:
				return nil, fmt.Errorf("%w: line %d column %d: %q is not a spike", ErrFormat, lineNo, j, line[j])
			}
		}
		t++
		if t == instants {
			out = append(out, current)
			if cycles > 0 && len(out) == cycles {
				return out, nil
			}
			current = newMatrix(inputs, instants)
			t = 0
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if t != 0 {
		return nil, fmt.Errorf("%w: trailing partial cycle of %d instants", ErrFormat, t)
	}
	if cycles > 0 && len(out) < cycles {
		return nil, fmt.Errorf("%w: got %d cycles, want %d", ErrFormat, len(out), cycles)
	}
	return out, nil
}

// ReadThresholds reads one threshold per line.
func ReadThresholds(r io.Reader, n int) ([]float64, error) {
	out := make([]float64, 0, n)
	sc := newScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: threshold %d: %v", ErrFormat, len(out), err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: thresholds got=%d want=%d", ErrFormat, len(out), n)
	}
	return out, nil
}

// ReadWeights reads a rows x cols matrix, one whitespace separated row per
// line.
func ReadWeights(r io.Reader, rows, cols int) ([][]float64, error) {
	out := make([][]float64, 0, rows)
	sc := newScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != cols {
			return nil, fmt.Errorf("%w: weight row %d has %d columns, want %d", ErrFormat, len(out), len(fields), cols)
		}
		row := make([]float64, cols)
		for j, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: weight [%d][%d]: %v", ErrFormat, len(out), j, err)
			}
			row[j] = v
		}
		out = append(out, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) != rows {
		return nil, fmt.Errorf("%w: weight rows got=%d want=%d", ErrFormat, len(out), rows)
	}
	return out, nil
}

func ReadInputSpikesFile(path string, inputs, instants, cycles int) ([][][]uint8, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadInputSpikes(f, inputs, instants, cycles)
}

func ReadThresholdsFile(path string, n int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadThresholds(f, n)
}

func ReadWeightsFile(path string, rows, cols int) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadWeights(f, rows, cols)
}

// ExtractFirst copies the first entry of the zip archive at zipPath to dest.
func ExtractFirst(zipPath, dest string) error {
	archive, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer archive.Close()

	if len(archive.File) == 0 {
		return fmt.Errorf("%w: %s is empty", ErrFormat, zipPath)
	}
	src, err := archive.File[0].Open()
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func newMatrix(rows, cols int) [][]uint8 {
	m := make([][]uint8, rows)
	for i := range m {
		m[i] = make([]uint8, cols)
	}
	return m
}
