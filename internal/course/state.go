package course

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnknownStatus is returned for a status name or code
	// outside loading, error and downloaded.
	ErrUnknownStatus = errors.New("unknown download status")
	// ErrInvalidProgress is returned for a loading fraction
	// outside [0, 1].
	ErrInvalidProgress = errors.New("loading progress must be within [0, 1]")
)

// Status is the lifecycle stage of a download. The numeric
// values are persisted and must not be reordered.
type Status int

const (
	StatusLoading    Status = 0
	StatusError      Status = 1
	StatusDownloaded Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusDownloaded:
		return "downloaded"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	return s >= StatusLoading && s <= StatusDownloaded
}

// ParseStatus converts a status name back to a Status.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "loading":
		return StatusLoading, nil
	case "error":
		return StatusError, nil
	case "downloaded":
		return StatusDownloaded, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownStatus, name)
}

// DownloadState is the transfer state of one sync node.
// Progress is only meaningful while loading; nil means the
// fraction is not known yet.
type DownloadState struct {
	Status   Status
	Progress *float64
}

// Loading returns a loading state with unknown progress.
func Loading() DownloadState {
	return DownloadState{Status: StatusLoading}
}

// LoadingAt returns a loading state with a known fraction.
func LoadingAt(p float64) DownloadState {
	return DownloadState{Status: StatusLoading, Progress: &p}
}

// Downloaded returns the terminal success state.
func Downloaded() DownloadState {
	return DownloadState{Status: StatusDownloaded}
}

// Failed returns the terminal failure state.
func Failed() DownloadState {
	return DownloadState{Status: StatusError}
}

func (s DownloadState) IsLoading() bool    { return s.Status == StatusLoading }
func (s DownloadState) IsDownloaded() bool { return s.Status == StatusDownloaded }
func (s DownloadState) IsError() bool      { return s.Status == StatusError }

// Validate checks the status and, while loading, that a
// known progress is a number within [0, 1].
func (s DownloadState) Validate() error {
	if !s.Status.IsValid() {
		return fmt.Errorf("%w: %d", ErrUnknownStatus, int(s.Status))
	}
	if s.Status != StatusLoading || s.Progress == nil {
		return nil
	}
	if p := *s.Progress; math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidProgress, p)
	}
	return nil
}

// Fraction returns how much of the node counts as downloaded:
// 1 when downloaded, the known progress (or 0) while loading,
// and 0 on error. Progress outside [0, 1] is clamped and NaN
// counts as 0.
func (s DownloadState) Fraction() float64 {
	switch s.Status {
	case StatusDownloaded:
		return 1
	case StatusLoading:
		if s.Progress == nil || math.IsNaN(*s.Progress) {
			return 0
		}
		return min(max(*s.Progress, 0), 1)
	default:
		return 0
	}
}

// Equal compares states by value, including the progress
// fraction behind the pointer.
func (s DownloadState) Equal(o DownloadState) bool {
	if s.Status != o.Status {
		return false
	}
	if s.Status != StatusLoading {
		return true
	}
	if s.Progress == nil || o.Progress == nil {
		return s.Progress == nil && o.Progress == nil
	}
	return *s.Progress == *o.Progress
}

func (s DownloadState) String() string {
	if s.Status == StatusLoading && s.Progress != nil {
		return fmt.Sprintf("loading(%g)", *s.Progress)
	}
	if s.Status == StatusLoading {
		return "loading(nil)"
	}
	return s.Status.String()
}

type downloadStateJSON struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
}

func (s DownloadState) MarshalJSON() ([]byte, error) {
	out := downloadStateJSON{Status: s.Status.String()}
	if s.Status == StatusLoading {
		out.Progress = s.Progress
	}
	return json.Marshal(out)
}

func (s *DownloadState) UnmarshalJSON(data []byte) error {
	var in downloadStateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	status, err := ParseStatus(in.Status)
	if err != nil {
		return err
	}
	out := DownloadState{Status: status}
	if status == StatusLoading {
		out.Progress = in.Progress
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*s = out
	return nil
}

// SelectionState records whether the user opted a node in
// for offline sync. The zero value is Deselected.
type SelectionState int

const (
	Deselected SelectionState = iota
	PartiallySelected
	Selected
)

func (s SelectionState) String() string {
	switch s {
	case Selected:
		return "selected"
	case PartiallySelected:
		return "partiallySelected"
	default:
		return "deselected"
	}
}

// IsAny reports whether the node is fully or partially
// selected.
func (s SelectionState) IsAny() bool {
	return s == Selected || s == PartiallySelected
}

func (s SelectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SelectionState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "selected":
		*s = Selected
	case "partiallySelected":
		*s = PartiallySelected
	case "deselected", "":
		*s = Deselected
	default:
		return fmt.Errorf("unknown selection state %q", b)
	}
	return nil
}
