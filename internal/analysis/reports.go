package analysis

import (
	"context"
	"encoding/json"
	"fmt"

	"fireeye-analysis/internal/auth"
	"fireeye-analysis/internal/fireeye"
)

// ReportStatus is the live state of one stored report.
type ReportStatus struct {
	Env              int    `json:"env"`
	ReportID         int64  `json:"report_id"`
	SubmissionStatus Status `json:"submission_status"`
}

// ReportResult is the full appliance result of one stored report.
type ReportResult struct {
	Env    int             `json:"env"`
	Result json.RawMessage `json:"result"`
}

// Statuses polls the appliance for every FireEye report of the sample
// identified by sampleID and sha256. Reports without a payload are left out.
func (s *Service) Statuses(ctx context.Context, tok fireeye.Token, scope auth.Scope, sha256 string, sampleID int64) ([]ReportStatus, error) {
	sample, err := s.store.SampleByIDAndHash(ctx, scope, sampleID, sha256)
	if err != nil {
		return nil, translate(err)
	}
	reports, err := s.store.ReportsForSample(ctx, sample.ID, ReportTypeFireEye)
	if err != nil {
		return nil, err
	}

	out := make([]ReportStatus, 0, len(reports))
	for _, rep := range reports {
		if !rep.Report.Valid {
			continue
		}
		ref, err := DecodeRef(rep.Report.String)
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", rep.ID, err)
		}
		status, err := s.poll(ctx, tok, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, ReportStatus{Env: ref.Env, ReportID: rep.ID, SubmissionStatus: status})
	}
	return out, nil
}

// poll asks the appliance once and reduces the answer.
func (s *Service) poll(ctx context.Context, tok fireeye.Token, ref Ref) (Status, error) {
	id, byList := ref.pollID()
	st, err := s.vendor.SubmissionStatus(ctx, tok, id)
	if err != nil {
		return "", upstream(OpStatus, err)
	}
	return ReduceStatus(st, byList, s.policy), nil
}

// Report fetches the extended appliance result of one report. The report's
// sample must match sha256 and fall within scope; otherwise nothing is asked
// of the appliance.
func (s *Service) Report(ctx context.Context, tok fireeye.Token, scope auth.Scope, sha256 string, reportID int64) ([]ReportResult, error) {
	rep, err := s.store.ReportByID(ctx, reportID, ReportTypeFireEye)
	if err != nil {
		return nil, translate(err)
	}
	if _, err := s.store.SampleByIDAndHash(ctx, scope, rep.SampleID, sha256); err != nil {
		return nil, translate(err)
	}
	if !rep.Report.Valid {
		return nil, ErrNotFound
	}
	ref, err := DecodeRef(rep.Report.String)
	if err != nil {
		return nil, fmt.Errorf("report %d: %w", rep.ID, err)
	}

	result, err := s.vendor.SubmissionResults(ctx, tok, ref.SubmissionID, fireeye.InfoLevelExtended)
	if err != nil {
		return nil, upstream(OpResults, err)
	}
	return []ReportResult{{Env: ref.Env, Result: result}}, nil
}
