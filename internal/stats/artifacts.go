package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"neurofault/internal/model"
)

const (
	runIndexFile = "run_index.json"
	effectsFile  = "effects.csv"
)

var effectsHeader = []string{
	"key", "component", "failure", "bit", "neuron", "skipped",
	"total_spikes", "delta", "mismatched_cycles", "mismatched_counts",
}

// CampaignArtifacts is everything exported for one campaign.
type CampaignArtifacts struct {
	Campaign model.CampaignRecord
	Runs     []model.FaultRunRecord
	Effects  []RunEffect
	Summary  Summary
}

type RunIndexEntry struct {
	CampaignID   string `json:"campaign_id"`
	CreatedAtUTC string `json:"created_at_utc"`
	Seed         int64  `json:"seed"`
	Runs         int    `json:"runs"`
	Skipped      int    `json:"skipped"`
	Affected     int    `json:"affected"`
}

// WriteCampaignArtifacts writes campaign.json, runs.json, summary.json and
// effects.csv under baseDir/<campaign id> and returns that directory.
func WriteCampaignArtifacts(baseDir string, artifacts CampaignArtifacts) (string, error) {
	if artifacts.Campaign.ID == "" {
		return "", fmt.Errorf("campaign id is required")
	}

	dir := filepath.Join(baseDir, artifacts.Campaign.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(dir, "campaign.json"), artifacts.Campaign); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "runs.json"), artifacts.Runs); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "summary.json"), artifacts.Summary); err != nil {
		return "", err
	}
	if err := writeEffects(filepath.Join(dir, effectsFile), artifacts.Effects); err != nil {
		return "", err
	}
	return dir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.CampaignID == "" {
		return fmt.Errorf("campaign id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].CampaignID == entry.CampaignID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns indexed campaigns newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

func ReadEffects(baseDir, campaignID string) ([]RunEffect, bool, error) {
	f, err := os.Open(filepath.Join(baseDir, campaignID, effectsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return []RunEffect{}, true, nil
	}

	effects := make([]RunEffect, 0, len(records)-1)
	for i, record := range records[1:] {
		e, err := parseEffect(record)
		if err != nil {
			return nil, false, fmt.Errorf("%s row %d: %w", effectsFile, i+2, err)
		}
		effects = append(effects, e)
	}
	return effects, true, nil
}

func writeEffects(path string, effects []RunEffect) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(effectsHeader); err != nil {
		return err
	}
	for _, e := range effects {
		record := []string{
			e.Key,
			e.Component,
			e.Failure,
			strconv.FormatUint(uint64(e.Bit), 10),
			strconv.Itoa(e.Neuron),
			strconv.FormatBool(e.Skipped),
			strconv.Itoa(e.TotalSpikes),
			strconv.Itoa(e.Delta),
			strconv.Itoa(e.MismatchedCycles),
			strconv.Itoa(e.MismatchedCounts),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func parseEffect(record []string) (RunEffect, error) {
	if len(record) != len(effectsHeader) {
		return RunEffect{}, fmt.Errorf("expected %d fields, got %d", len(effectsHeader), len(record))
	}
	bit, err := strconv.ParseUint(record[3], 10, 32)
	if err != nil {
		return RunEffect{}, err
	}
	skipped, err := strconv.ParseBool(record[5])
	if err != nil {
		return RunEffect{}, err
	}
	ints := make([]int, 0, 5)
	for _, field := range []string{record[4], record[6], record[7], record[8], record[9]} {
		v, err := strconv.Atoi(field)
		if err != nil {
			return RunEffect{}, err
		}
		ints = append(ints, v)
	}
	return RunEffect{
		Key:              record[0],
		Component:        record[1],
		Failure:          record[2],
		Bit:              uint32(bit),
		Neuron:           ints[0],
		Skipped:          skipped,
		TotalSpikes:      ints[1],
		Delta:            ints[2],
		MismatchedCycles: ints[3],
		MismatchedCounts: ints[4],
	}, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
