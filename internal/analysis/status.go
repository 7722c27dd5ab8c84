package analysis

import (
	"fmt"
	"strings"

	"fireeye-analysis/internal/fireeye"
)

type Status string

const (
	StatusDone       Status = "DONE"
	StatusInProgress Status = "IN_PROGRESS"
	// StatusFailed is only reported under ErrorsFail.
	StatusFailed Status = "FAILED"
)

// ErrorPolicy decides how a vendor-reported error surfaces in a status.
type ErrorPolicy int

const (
	// ErrorsPending reports vendor errors as IN_PROGRESS.
	ErrorsPending ErrorPolicy = iota
	// ErrorsFail reports vendor errors as FAILED.
	ErrorsFail
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pending":
		return ErrorsPending, nil
	case "failed":
		return ErrorsFail, nil
	default:
		return ErrorsPending, fmt.Errorf("unknown error policy %q", s)
	}
}

func (p ErrorPolicy) String() string {
	if p == ErrorsFail {
		return "failed"
	}
	return "pending"
}

// ReduceStatus maps a status document to a Status. byList selects the URL
// list vocabulary ("status") over the direct one ("submissionStatus").
// Only an exact completion value yields DONE.
func ReduceStatus(st *fireeye.SubmissionStatus, byList bool, policy ErrorPolicy) Status {
	if st == nil {
		return StatusInProgress
	}
	if byList {
		if st.Status == fireeye.StatusListDone {
			return StatusDone
		}
	} else if st.SubmissionStatus == fireeye.StatusSubmissionDone {
		return StatusDone
	}
	if policy == ErrorsFail && st.VendorError() != "" {
		return StatusFailed
	}
	return StatusInProgress
}
