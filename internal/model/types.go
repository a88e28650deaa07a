package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// AccessLevel is the foothold the agent holds on the target host.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessUser
	AccessRoot
)

func (a AccessLevel) String() string {
	switch a {
	case AccessNone:
		return "none"
	case AccessUser:
		return "user"
	case AccessRoot:
		return "root"
	default:
		return "unknown"
	}
}

// EpisodeState is the observable state of one simulated engagement.
type EpisodeState struct {
	Access      AccessLevel `json:"access"`
	PortsFound  bool        `json:"ports_found"`
	VulnFound   bool        `json:"vuln_found"`
	ShellActive bool        `json:"shell_active"`
	AlertLevel  float64     `json:"alert_level"`
}

// StateSize is the length of the observation vector fed to the network and
// ActionCount the width of its output head; the environment's action table
// and the network heads are both sized from these.
const (
	StateSize   = 5
	ActionCount = 20
)

// Vector flattens the state into the fixed-width observation the network consumes.
func (s EpisodeState) Vector() []float64 {
	obs := make([]float64, StateSize)
	obs[0] = float64(s.Access)
	if s.PortsFound {
		obs[1] = 1
	}
	if s.VulnFound {
		obs[2] = 1
	}
	if s.ShellActive {
		obs[3] = 1
	}
	obs[4] = s.AlertLevel
	return obs
}

// Outcome records how an episode ended.
type Outcome string

const (
	OutcomeFlagCaptured Outcome = "flag_captured"
	OutcomeDetected     Outcome = "detected"
	OutcomeTimeout      Outcome = "timeout"
)

// LayerParams is one dense layer's weights in row-major order plus its biases.
type LayerParams struct {
	Name    string    `json:"name"`
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	Weights []float64 `json:"weights"`
	Biases  []float64 `json:"biases"`
}

type NetworkParams struct {
	Layers []LayerParams `json:"layers"`
}

// Checkpoint is a resumable snapshot of the learner after an episode.
type Checkpoint struct {
	VersionedRecord
	Episode int           `json:"episode"`
	Epsilon float64       `json:"epsilon"`
	Reward  float64       `json:"reward"`
	Online  NetworkParams `json:"online"`
	Target  NetworkParams `json:"target"`
}

type EpisodeSummary struct {
	VersionedRecord
	Episode int     `json:"episode"`
	Steps   int     `json:"steps"`
	Reward  float64 `json:"reward"`
	Epsilon float64 `json:"epsilon"`
	Outcome Outcome `json:"outcome"`
}

// ActionRecord is one executed step in an engagement trace.
type ActionRecord struct {
	Step     int     `json:"step"`
	ActionID int     `json:"action_id"`
	Command  string  `json:"command"`
	Output   string  `json:"output"`
	Reward   float64 `json:"reward"`
	Success  bool    `json:"success"`
}

// EngagementRecord is the full trace and terminal state of one rollout,
// consumed by report generation.
type EngagementRecord struct {
	VersionedRecord
	Target     string         `json:"target"`
	Episode    int            `json:"episode"`
	FinalState EpisodeState   `json:"final_state"`
	Outcome    Outcome        `json:"outcome"`
	Reward     float64        `json:"reward"`
	Trace      []ActionRecord `json:"trace"`
}
