package spikeio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"neurofault/internal/fault"
)

// SpikeCounts sums each row of a spike matrix.
func SpikeCounts(spikes [][]uint8) []int {
	counts := make([]int, len(spikes))
	for i, row := range spikes {
		for _, s := range row {
			counts[i] += int(s)
		}
	}
	return counts
}

// WriteCounters writes one count per line.
func WriteCounters(w io.Writer, counts []int) error {
	bw := bufio.NewWriter(w)
	for _, c := range counts {
		if _, err := fmt.Fprintf(bw, "%d\n", c); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// RunFileName is the counter file name for a fault configuration.
func RunFileName(cfg fault.Config) string {
	return cfg.Name() + ".txt"
}

// WriteCounterFile writes every cycle's counters, back to back, to
// dir/file.
func WriteCounterFile(dir, file string, cycles [][]int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, file)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	for _, counts := range cycles {
		if err := WriteCounters(f, counts); err != nil {
			_ = f.Close()
			return "", err
		}
	}
	return path, f.Close()
}
