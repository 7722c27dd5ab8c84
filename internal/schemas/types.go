package schemas

import (
	"fireeye-analysis/internal/analysis"
)

const (
	MessageFilesSubmitted = "Your files have been submitted for dynamic analysis"
	MessageURLsSubmitted  = "Your URLs have been submitted for dynamic analysis"
)

type FileRef struct {
	ID     int64  `json:"id"`
	SHA256 string `json:"sha256"`
}

// DynAnalysis selects the sandbox environments per vendor.
type DynAnalysis struct {
	FireEye []int `json:"fireeye"`
}

type SubmitFilesRequest struct {
	Files       []FileRef   `json:"files"`
	DynAnalysis DynAnalysis `json:"dyn_analysis"`
}

func (r *SubmitFilesRequest) Validate() error {
	if len(r.Files) == 0 {
		return &analysis.ValidationError{Field: "files", Message: "No file to submit"}
	}
	for _, f := range r.Files {
		if f.ID == 0 || f.SHA256 == "" {
			return &analysis.ValidationError{Field: "files", Message: "each file needs an id and a sha256"}
		}
	}
	return validateEnvs(r.DynAnalysis)
}

// Refs converts the request files for the analysis service.
func (r *SubmitFilesRequest) Refs() []analysis.FileRef {
	out := make([]analysis.FileRef, 0, len(r.Files))
	for _, f := range r.Files {
		out = append(out, analysis.FileRef{ID: f.ID, SHA256: f.SHA256})
	}
	return out
}

type SubmitURLsRequest struct {
	URLs        []string    `json:"urls"`
	DynAnalysis DynAnalysis `json:"dyn_analysis"`
}

func (r *SubmitURLsRequest) Validate() error {
	if len(r.URLs) == 0 {
		return &analysis.ValidationError{Field: "urls", Message: "No URL to submit"}
	}
	return validateEnvs(r.DynAnalysis)
}

func validateEnvs(d DynAnalysis) error {
	if len(d.FireEye) == 0 {
		return &analysis.ValidationError{Field: "dyn_analysis.fireeye", Message: "no environment selected"}
	}
	return nil
}

type SubmitResponse struct {
	Statuses []analysis.ItemStatus `json:"statuses"`
	Message  string                `json:"message"`
}

type StatusesResponse struct {
	Statuses []analysis.ReportStatus `json:"statuses"`
}

type ResultsResponse struct {
	Results []analysis.ReportResult `json:"results"`
}

type EnvironmentsResponse struct {
	Environments []analysis.Environment `json:"environments"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
