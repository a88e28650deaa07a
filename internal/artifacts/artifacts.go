// Package artifacts persists per-run training artifacts as plain files so
// runs can be inspected and compared without going through the store.
package artifacts

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const runIndexFile = "run_index.json"

// RunConfig captures the hyperparameters a training run was launched with.
type RunConfig struct {
	RunID           string  `json:"run_id"`
	Episodes        int     `json:"episodes"`
	CheckpointEvery int     `json:"checkpoint_every"`
	Seed            int64   `json:"seed"`
	MaxSteps        int     `json:"max_steps"`
	AlertThreshold  float64 `json:"alert_threshold"`
	Deterministic   bool    `json:"deterministic"`
	Gamma           float64 `json:"gamma"`
	LearningRate    float64 `json:"learning_rate"`
	BatchSize       int     `json:"batch_size"`
	ReplayCapacity  int     `json:"replay_capacity"`
	Tau             float64 `json:"tau"`
	EpsilonStart    float64 `json:"epsilon_start"`
	EpsilonMin      float64 `json:"epsilon_min"`
	EpsilonDecay    float64 `json:"epsilon_decay"`
}

type RunArtifacts struct {
	Config        RunConfig `json:"config"`
	RewardHistory []float64 `json:"reward_history"`
	BestEpisode   int       `json:"best_episode"`
	BestReward    float64   `json:"best_reward"`
	FinalEpsilon  float64   `json:"final_epsilon"`
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Episodes     int     `json:"episodes"`
	Seed         int64   `json:"seed"`
	BestEpisode  int     `json:"best_episode"`
	BestReward   float64 `json:"best_reward"`
	FinalEpsilon float64 `json:"final_epsilon"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes config.json, summary.json and reward_history.csv
// under baseDir/<run id> and returns the run directory.
func WriteRunArtifacts(baseDir string, art RunArtifacts) (string, error) {
	if strings.TrimSpace(art.Config.RunID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, art.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), art.Config); err != nil {
		return "", err
	}
	summary := map[string]any{
		"best_episode":  art.BestEpisode,
		"best_reward":   art.BestReward,
		"final_epsilon": art.FinalEpsilon,
		"episodes_run":  len(art.RewardHistory),
	}
	if err := writeJSON(filepath.Join(runDir, "summary.json"), summary); err != nil {
		return "", err
	}
	if err := writeRewardSeries(filepath.Join(runDir, "reward_history.csv"), art.RewardHistory); err != nil {
		return "", err
	}

	return runDir, nil
}

// AppendRunIndex upserts the entry into baseDir/run_index.json keyed by run id.
func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the run index sorted most recent first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
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

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func ReadRewardSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "reward_history.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("reward series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("reward series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}

func writeRewardSeries(path string, history []float64) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"episode", "reward"}); err != nil {
		return err
	}
	for i, reward := range history {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(reward, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
