package storage

import (
	"encoding/json"
	"errors"

	"redsim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeCheckpoint(cp model.Checkpoint) ([]byte, error) {
	return json.Marshal(cp)
}

func DecodeCheckpoint(data []byte) (model.Checkpoint, error) {
	var cp model.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return model.Checkpoint{}, err
	}
	if err := checkVersion(cp.VersionedRecord); err != nil {
		return model.Checkpoint{}, err
	}
	return cp, nil
}

func EncodeEpisodeSummaries(summaries []model.EpisodeSummary) ([]byte, error) {
	return json.Marshal(summaries)
}

func DecodeEpisodeSummaries(data []byte) ([]model.EpisodeSummary, error) {
	var summaries []model.EpisodeSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, err
	}
	for _, summary := range summaries {
		if err := checkVersion(summary.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

func EncodeEngagements(engagements []model.EngagementRecord) ([]byte, error) {
	return json.Marshal(engagements)
}

func DecodeEngagements(data []byte) ([]model.EngagementRecord, error) {
	var engagements []model.EngagementRecord
	if err := json.Unmarshal(data, &engagements); err != nil {
		return nil, err
	}
	for _, engagement := range engagements {
		if err := checkVersion(engagement.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return engagements, nil
}

func EncodeRewardHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeRewardHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// Stamp fills in the current schema and codec versions on a record headed
// for persistence.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
