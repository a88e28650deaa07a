package main

import (
	"encoding/json"
	"fmt"
	"os"

	redsimapi "redsim/pkg/redsim"
)

func loadTrainRequestFromConfig(path string) (redsimapi.TrainRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return redsimapi.TrainRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return redsimapi.TrainRequest{}, err
	}

	var req redsimapi.TrainRequest
	if v, ok := asString(raw["run_id"]); ok {
		req.RunID = v
	}
	if v, ok := asInt(raw["episodes"]); ok {
		req.Episodes = v
	}
	if v, ok := asInt(raw["checkpoint_every"]); ok {
		req.CheckpointEvery = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asInt(raw["max_steps"]); ok {
		req.MaxSteps = v
	}
	if v, ok := asFloat64(raw["alert_threshold"]); ok {
		req.AlertThreshold = v
	}
	if v, ok := asBool(raw["deterministic"]); ok {
		req.Deterministic = v
	}
	if v, ok := asFloat64(raw["gamma"]); ok {
		req.Gamma = v
	}
	if v, ok := asFloat64(raw["learning_rate"]); ok {
		req.LearningRate = v
	}
	if v, ok := asInt(raw["batch_size"]); ok {
		req.BatchSize = v
	}
	if v, ok := asInt(raw["replay_capacity"]); ok {
		req.ReplayCapacity = v
	}
	if v, ok := asFloat64(raw["tau"]); ok {
		req.Tau = v
	}
	if v, ok := asFloat64(raw["epsilon_start"]); ok {
		req.EpsilonStart = v
	}
	if v, ok := asFloat64(raw["epsilon_min"]); ok {
		req.EpsilonMin = v
	}
	if v, ok := asFloat64(raw["epsilon_decay"]); ok {
		req.EpsilonDecay = v
	}
	if v, ok := asBool(raw["resume_best"]); ok {
		req.ResumeBest = v
	}
	if v, ok := asInt(raw["resume_episode"]); ok {
		req.ResumeEpisode = v
	}

	return req, nil
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}

func overrideFromFlags(req *redsimapi.TrainRequest, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "run-id":
			req.RunID = v.(string)
		case "episodes":
			req.Episodes = v.(int)
		case "checkpoint-every":
			req.CheckpointEvery = v.(int)
		case "seed":
			req.Seed = v.(int64)
		case "max-steps":
			req.MaxSteps = v.(int)
		case "alert-threshold":
			req.AlertThreshold = v.(float64)
		case "deterministic":
			req.Deterministic = v.(bool)
		case "gamma":
			req.Gamma = v.(float64)
		case "lr":
			req.LearningRate = v.(float64)
		case "batch":
			req.BatchSize = v.(int)
		case "replay":
			req.ReplayCapacity = v.(int)
		case "tau":
			req.Tau = v.(float64)
		case "eps-start":
			req.EpsilonStart = v.(float64)
		case "eps-min":
			req.EpsilonMin = v.(float64)
		case "eps-decay":
			req.EpsilonDecay = v.(float64)
		case "resume-best":
			req.ResumeBest = v.(bool)
		case "resume-episode":
			req.ResumeEpisode = v.(int)
		}
	}
}

func loadOrDefaultTrainRequest(configPath string) (redsimapi.TrainRequest, error) {
	if configPath == "" {
		return redsimapi.TrainRequest{}, nil
	}
	req, err := loadTrainRequestFromConfig(configPath)
	if err != nil {
		return redsimapi.TrainRequest{}, fmt.Errorf("load config: %w", err)
	}
	return req, nil
}
