package fireeye

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AnalysisFull requests a full analysis in SubmissionOptions.AnalysisType.
const AnalysisFull = 2

// Values reported by the status endpoint once analysis has finished.
const (
	StatusSubmissionDone = "Done"
	StatusListDone       = "Submission Done"
)

// InfoLevelExtended asks the results endpoint for the full document.
const InfoLevelExtended = "extended"

// ID is an identifier the appliance sends either as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("fireeye id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// SubmissionOptions is the "options" document sent with file and URL
// submissions.
type SubmissionOptions struct {
	Application  int      `json:"application"`
	Timeout      int      `json:"timeout"`
	Priority     int      `json:"priority"`
	Profiles     []int    `json:"profiles"`
	AnalysisType int      `json:"analysistype"`
	Force        bool     `json:"force"`
	Prefetch     int      `json:"prefetch"`
	URLs         []string `json:"urls,omitempty"`
}

// FileOptions returns the fixed options used for sample uploads.
func FileOptions(profile int) SubmissionOptions {
	return SubmissionOptions{
		Application:  -1,
		Timeout:      500,
		Priority:     0,
		Profiles:     []int{profile},
		AnalysisType: AnalysisFull,
		Force:        true,
		Prefetch:     1,
	}
}

// URLOptions returns the fixed options used for URL submissions.
func URLOptions(profile int, urls ...string) SubmissionOptions {
	return SubmissionOptions{
		Application:  0,
		Timeout:      500,
		Priority:     0,
		Profiles:     []int{profile},
		AnalysisType: AnalysisFull,
		Force:        true,
		Prefetch:     1,
		URLs:         urls,
	}
}

// Submission is one entry of the file submission response.
type Submission struct {
	ID ID `json:"ID"`
}

// URLSubmission is the URL submission response; the list id is at
// entity.response[0].id.
type URLSubmission struct {
	Entity struct {
		Response []struct {
			ID ID `json:"id"`
		} `json:"response"`
	} `json:"entity"`
}

// ListID returns the id of the submitted URL list.
func (u *URLSubmission) ListID() (string, error) {
	if u == nil || len(u.Entity.Response) == 0 || u.Entity.Response[0].ID == "" {
		return "", errors.New("url submission response carries no list id")
	}
	return u.Entity.Response[0].ID.String(), nil
}

// SubmissionStatus is the status document. Direct submissions report
// SubmissionStatus; URL lists report Status plus the submissions in Response.
// Response is kept raw because the appliance sends an object there on error.
type SubmissionStatus struct {
	SubmissionStatus string          `json:"submissionStatus,omitempty"`
	Status           string          `json:"status,omitempty"`
	State            string          `json:"state,omitempty"`
	Error            string          `json:"error,omitempty"`
	Response         json.RawMessage `json:"response,omitempty"`
}

// UnmarshalJSON accepts any JSON document. Fields of an unexpected type are
// dropped, except error, which keeps its raw text so the error stays visible.
// A non-object document decodes to an empty status.
func (s *SubmissionStatus) UnmarshalJSON(b []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		if !json.Valid(b) {
			return err
		}
		*s = SubmissionStatus{}
		return nil
	}
	*s = SubmissionStatus{
		SubmissionStatus: stringField(fields["submissionStatus"]),
		Status:           stringField(fields["status"]),
		State:            stringField(fields["state"]),
		Response:         fields["response"],
	}
	if raw := bytes.TrimSpace(fields["error"]); len(raw) > 0 && string(raw) != "null" && string(raw) != "false" {
		if msg := stringField(raw); msg != "" || raw[0] == '"' {
			s.Error = msg
		} else {
			s.Error = string(raw)
		}
	}
	return nil
}

// stringField returns raw as a string when it is a JSON string, else "".
func stringField(raw json.RawMessage) string {
	var v string
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return ""
	}
	return v
}

type statusDetail struct {
	ID    ID     `json:"id"`
	State string `json:"state"`
	Error string `json:"error"`
}

// SubmissionIDs returns the submission ids listed under response.
func (s *SubmissionStatus) SubmissionIDs() []string {
	var items []statusDetail
	if err := json.Unmarshal(s.Response, &items); err != nil {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.ID != "" {
			ids = append(ids, it.ID.String())
		}
	}
	return ids
}

// VendorError returns the error the appliance embedded in an otherwise
// successful answer, or "" when there is none.
func (s *SubmissionStatus) VendorError() string {
	if s == nil {
		return ""
	}
	if s.Error != "" {
		return s.Error
	}
	if strings.EqualFold(s.State, "error") {
		return "state ERROR"
	}

	var obj statusDetail
	if len(s.Response) > 0 && json.Unmarshal(s.Response, &obj) == nil {
		if obj.Error != "" {
			return obj.Error
		}
		if strings.EqualFold(obj.State, "error") {
			return "state ERROR"
		}
	}

	for _, v := range []string{s.SubmissionStatus, s.Status} {
		l := strings.ToLower(v)
		if strings.Contains(l, "error") || strings.Contains(l, "fail") {
			return v
		}
	}
	return ""
}

// Config is the appliance configuration document.
type Config struct {
	Entity struct {
		Sensors []Sensor `json:"sensors"`
	} `json:"entity"`
}

type Sensor struct {
	Name     string    `json:"sensorName,omitempty"`
	Profiles []Profile `json:"profiles"`
}

// Profile is a guest image configuration of a sensor.
type Profile struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
