package types

import (
	"time"

	"github.com/chrissnell/riverprofile/internal/network"
)

// Failure reasons recorded for rivers that could not be extracted
const (
	ReasonCycle    = "cycle"
	ReasonSampling = "sampling"
	ReasonCanceled = "canceled"
	ReasonOther    = "other"
)

// Failure describes one river abandoned during a run
type Failure struct {
	Head   network.SegmentID `json:"head" msgpack:"head"`
	Reason string            `json:"reason" msgpack:"reason"`
	Error  string            `json:"error" msgpack:"error"`
}

// Diagnostics is the per-run summary of everything recoverable that happened while extracting
// profiles
type Diagnostics struct {
	RunID      string    `json:"run_id" msgpack:"run_id"`
	StartedAt  time.Time `json:"started_at" msgpack:"started_at"`
	FinishedAt time.Time `json:"finished_at" msgpack:"finished_at"`
	Seed       int64     `json:"seed" msgpack:"seed"`

	Segments int `json:"segments" msgpack:"segments"`
	Heads    int `json:"heads" msgpack:"heads"`
	Outlets  int `json:"outlets" msgpack:"outlets"`

	Requested int `json:"requested" msgpack:"requested"`
	Selected  int `json:"selected" msgpack:"selected"`
	Extracted int `json:"extracted" msgpack:"extracted"`

	Ambiguities      []network.Ambiguity `json:"ambiguities" msgpack:"ambiguities"`
	Cycles           int                 `json:"cycles" msgpack:"cycles"`
	MissingElevation int                 `json:"missing_elevation" msgpack:"missing_elevation"`
	MissingArea      int                 `json:"missing_area" msgpack:"missing_area"`
	SinkErrors       int                 `json:"sink_errors" msgpack:"sink_errors"`
	Failures         []Failure           `json:"failures" msgpack:"failures"`
}

// Capped reports whether fewer rivers were selected than requested
func (d *Diagnostics) Capped() bool {
	return d.Requested > 0 && d.Selected < d.Requested
}

// Failed is the number of abandoned rivers
func (d *Diagnostics) Failed() int {
	return len(d.Failures)
}
