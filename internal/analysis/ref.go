package analysis

import (
	"encoding/json"
	"errors"
	"fmt"

	"fireeye-analysis/internal/fireeye"
)

// ReportTypeFireEye is the reports.type_id of FireEye AX runs.
const ReportTypeFireEye = 3

// Ref points at a remote submission. ListID is set only for URL submissions,
// in which case status is polled through the list.
type Ref struct {
	ListID       string `json:"list_id,omitempty"`
	SubmissionID string `json:"submission_id"`
	Env          int    `json:"env"`
}

// Encode serializes the reference into a report payload.
func (r Ref) Encode() (string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// pollID is the id to query status with.
func (r Ref) pollID() (string, bool) {
	if r.ListID != "" {
		return r.ListID, true
	}
	return r.SubmissionID, false
}

// DecodeRef parses a report payload. submission_id and env are required.
func DecodeRef(payload string) (Ref, error) {
	var raw struct {
		ListID       *fireeye.ID `json:"list_id"`
		SubmissionID *fireeye.ID `json:"submission_id"`
		Env          *int        `json:"env"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Ref{}, fmt.Errorf("decode report payload: %w", err)
	}
	if raw.SubmissionID == nil || *raw.SubmissionID == "" {
		return Ref{}, errors.New("report payload has no submission_id")
	}
	if raw.Env == nil {
		return Ref{}, errors.New("report payload has no env")
	}
	ref := Ref{SubmissionID: raw.SubmissionID.String(), Env: *raw.Env}
	if raw.ListID != nil {
		ref.ListID = raw.ListID.String()
	}
	return ref, nil
}
