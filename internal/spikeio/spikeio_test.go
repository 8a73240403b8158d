package spikeio

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"neurofault/internal/fault"
)

func TestReadInputSpikes(t *testing.T) {
	// Two cycles of three instants over two input lines.
	data := "01\n10\n11\n\n00\n01\n10\n"
	cycles, err := ReadInputSpikes(strings.NewReader(data), 2, 3, 0)
	require.NoError(t, err)
	require.Equal(t, [][][]uint8{
		{{0, 1, 1}, {1, 0, 1}},
		{{0, 0, 1}, {0, 1, 0}},
	}, cycles)

	first, err := ReadInputSpikes(strings.NewReader(data), 2, 3, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
}

func TestReadInputSpikesErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		cycles int
	}{
		{"wrong width", "011\n", 0},
		{"bad character", "0x\n10\n", 0},
		{"partial cycle", "01\n10\n11\n01\n", 0},
		{"too few cycles", "01\n10\n11\n", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadInputSpikes(strings.NewReader(tt.data), 2, 3, tt.cycles)
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestReadThresholds(t *testing.T) {
	got, err := ReadThresholds(strings.NewReader("-52.5\n -50 \n\n"), 2)
	require.NoError(t, err)
	require.Equal(t, []float64{-52.5, -50}, got)

	_, err = ReadThresholds(strings.NewReader("-52.5\n"), 2)
	require.ErrorIs(t, err, ErrFormat)
	_, err = ReadThresholds(strings.NewReader("abc\n"), 1)
	require.ErrorIs(t, err, ErrFormat)
}

func TestReadWeights(t *testing.T) {
	got, err := ReadWeights(strings.NewReader("0.1 0.2\n0.3\t0.4\n"), 2, 2)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{0.1, 0.2}, {0.3, 0.4}}, got)

	_, err = ReadWeights(strings.NewReader("0.1 0.2 0.3\n"), 1, 2)
	require.ErrorIs(t, err, ErrFormat)
	_, err = ReadWeights(strings.NewReader("0.1 0.2\n"), 2, 2)
	require.ErrorIs(t, err, ErrFormat)
}

func TestExtractFirst(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "inputSpikes.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("inputSpikes.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("01\n10\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(dir, "out", "inputSpikes.txt")
	require.NoError(t, ExtractFirst(zipPath, dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "01\n10\n", string(data))

	require.Error(t, ExtractFirst(filepath.Join(dir, "missing.zip"), dest))
}

func TestCounters(t *testing.T) {
	counts := SpikeCounts([][]uint8{{0, 1, 1}, {0, 0, 0}, {1, 1, 1}})
	require.Equal(t, []int{2, 0, 3}, counts)

	var sb strings.Builder
	require.NoError(t, WriteCounters(&sb, counts))
	require.Equal(t, "2\n0\n3\n", sb.String())
}

func TestWriteCounterFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	cfg := fault.NewConfig([]fault.Component{fault.ComponentVTh}, fault.StuckAt1(4), 2)
	name := RunFileName(cfg)
	require.Equal(t, "VTh_StuckAt1_4_2.txt", name)
	require.Equal(t, "NoFault_None_0.txt", RunFileName(fault.NoFault()))

	path, err := WriteCounterFile(dir, name, [][]int{{1, 2}, {3, 4}})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, name), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n4\n", string(data))
}
