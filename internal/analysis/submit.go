package analysis

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fireeye-analysis/internal/auth"
	"fireeye-analysis/internal/db"
	"fireeye-analysis/internal/events"
	"fireeye-analysis/internal/fireeye"
)

const reasonFileUnavailable = "sample file unavailable"

// FileRef names an uploaded sample by id and content hash.
type FileRef struct {
	ID     int64
	SHA256 string
}

// ItemStatus is one entry of a batch submission answer. Error is set when
// the sample was skipped in every environment.
type ItemStatus struct {
	SHA256 string `json:"sha256"`
	Error  string `json:"error,omitempty"`
}

// Outcome is the result of submitting one sample to one environment:
// either a Ref, or the reason the sample was skipped.
type Outcome struct {
	Ref     *Ref
	Skipped string
}

type created struct {
	sample db.Sample
	ref    Ref
}

// SubmitFiles submits every requested sample, and its children, to each
// environment. Samples resolve only when owned by user. Reports of one
// environment are committed together, so an appliance failure leaves the
// reports of earlier environments in place.
func (s *Service) SubmitFiles(ctx context.Context, tok fireeye.Token, user auth.User, files []FileRef, envs []int) ([]ItemStatus, error) {
	if len(envs) == 0 {
		return nil, &ValidationError{Field: "dyn_analysis.fireeye", Message: "no environment selected"}
	}

	statuses := make([]ItemStatus, 0, len(files))
	for _, f := range files {
		sample, err := s.store.SampleByIDAndHash(ctx, auth.OwnedBy(user.ID), f.ID, f.SHA256)
		if err != nil {
			return nil, translate(err)
		}
		children, err := s.store.SampleChildren(ctx, sample.ID)
		if err != nil {
			return nil, err
		}
		batch := append([]db.Sample{*sample}, children...)

		submitted := make(map[string]bool)
		skipped := make(map[string]string)
		for _, env := range envs {
			var done []created
			for _, smp := range batch {
				out, err := s.submitFile(ctx, tok, smp, env)
				if err != nil {
					s.metrics.Submission("file", "failed")
					return nil, err
				}
				if out.Ref == nil {
					s.metrics.Submission("file", "skipped")
					skipped[smp.SHA256] = out.Skipped
					continue
				}
				s.metrics.Submission("file", "submitted")
				done = append(done, created{sample: smp, ref: *out.Ref})
				submitted[smp.SHA256] = true
			}
			if err := s.record(ctx, user, done); err != nil {
				return nil, err
			}
		}

		statuses = append(statuses, batchStatuses(batch, submitted, skipped)...)
	}
	return statuses, nil
}

// batchStatuses lists each submitted hash once, then hashes that were
// skipped everywhere, in batch order.
func batchStatuses(batch []db.Sample, submitted map[string]bool, skipped map[string]string) []ItemStatus {
	var out []ItemStatus
	seen := make(map[string]bool)
	for _, smp := range batch {
		if submitted[smp.SHA256] && !seen[smp.SHA256] {
			seen[smp.SHA256] = true
			out = append(out, ItemStatus{SHA256: smp.SHA256})
		}
	}
	for _, smp := range batch {
		if reason, ok := skipped[smp.SHA256]; ok && !seen[smp.SHA256] {
			seen[smp.SHA256] = true
			out = append(out, ItemStatus{SHA256: smp.SHA256, Error: reason})
		}
	}
	return out
}

// record commits the reports of one environment and announces them.
func (s *Service) record(ctx context.Context, user auth.User, done []created) error {
	if len(done) == 0 {
		return nil
	}
	reports := make([]db.Report, 0, len(done))
	for _, c := range done {
		rep, err := newReport(c.sample.ID, c.ref)
		if err != nil {
			return err
		}
		reports = append(reports, rep)
	}
	if err := s.store.AddReports(ctx, reports); err != nil {
		return fmt.Errorf("store reports: %w", err)
	}
	for i, c := range done {
		s.publish(ctx, user, c.sample, reports[i].ID, c.ref)
	}
	return nil
}

func newReport(sampleID int64, ref Ref) (db.Report, error) {
	payload, err := ref.Encode()
	if err != nil {
		return db.Report{}, fmt.Errorf("encode report payload: %w", err)
	}
	return db.Report{
		SampleID: sampleID,
		TypeID:   ReportTypeFireEye,
		Report:   sql.NullString{String: payload, Valid: true},
	}, nil
}

// submitFile uploads the stored bytes of sample. A sample whose bytes cannot
// be opened is skipped rather than failing the batch.
func (s *Service) submitFile(ctx context.Context, tok fireeye.Token, sample db.Sample, env int) (Outcome, error) {
	f, err := s.samples.Open(ctx, sample.SHA256)
	if err != nil {
		s.log.Warn("skipping sample without stored file",
			slog.String("sha256", sample.SHA256),
			slog.Int64("sample_id", sample.ID),
			slog.String("error", err.Error()))
		return Outcome{Skipped: reasonFileUnavailable}, nil
	}
	defer f.Close()

	filename := sample.Filename
	if filename == "" {
		filename = sample.SHA256
	}
	subs, err := s.vendor.SubmitFile(ctx, tok, fireeye.FileOptions(env), filename, f)
	if err != nil {
		return Outcome{}, upstream(OpSubmitFile, err)
	}
	if len(subs) == 0 || subs[0].ID == "" {
		return Outcome{}, upstream(OpSubmitFile, errors.New("response carries no submission id"))
	}
	return Outcome{Ref: &Ref{SubmissionID: subs[0].ID.String(), Env: env}}, nil
}

// NormalizeURL rejects empty input and defaults the scheme to http.
func NormalizeURL(raw string) (string, error) {
	if raw == "" {
		return "", &ValidationError{Field: "urls", Message: "No URL to submit"}
	}
	if !strings.HasPrefix(raw, "http") {
		raw = "http://" + raw
	}
	return raw, nil
}

// URLHash is the sha256 a URL sample is stored under.
func URLHash(u string) string {
	sum := sha256.Sum256([]byte(u))
	return hex.EncodeToString(sum[:])
}

// SubmitURLs creates one sample per URL, owned by user, and submits the URL
// to each environment. Every URL is validated before the first remote call.
func (s *Service) SubmitURLs(ctx context.Context, tok fireeye.Token, user auth.User, urls []string, envs []int) ([]ItemStatus, error) {
	if len(envs) == 0 {
		return nil, &ValidationError{Field: "dyn_analysis.fireeye", Message: "no environment selected"}
	}
	normalized := make([]string, 0, len(urls))
	for _, raw := range urls {
		u, err := NormalizeURL(raw)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, u)
	}

	statuses := make([]ItemStatus, 0, len(normalized))
	for _, u := range normalized {
		sample := db.Sample{
			UserID:   user.ID,
			Filename: u,
			SHA256:   URLHash(u),
			MD5:      "N/A",
			SHA1:     "N/A",
			SHA512:   "N/A",
			CTPH:     "N/A",
		}

		refs := make([]Ref, 0, len(envs))
		for _, env := range envs {
			ref, err := s.submitURL(ctx, tok, u, env)
			if err != nil {
				s.metrics.Submission("url", "failed")
				return nil, err
			}
			s.metrics.Submission("url", "submitted")
			refs = append(refs, ref)
		}

		reports := make([]db.Report, 0, len(refs))
		for _, ref := range refs {
			rep, err := newReport(0, ref)
			if err != nil {
				return nil, err
			}
			reports = append(reports, rep)
		}
		if err := s.store.CreateSampleWithReports(ctx, &sample, reports); err != nil {
			return nil, fmt.Errorf("store url sample: %w", err)
		}
		for i, ref := range refs {
			s.publish(ctx, user, sample, reports[i].ID, ref)
		}
		statuses = append(statuses, ItemStatus{SHA256: sample.SHA256})
	}
	return statuses, nil
}

// submitURL submits one URL and resolves the submission id through an
// immediate status lookup of the returned list.
func (s *Service) submitURL(ctx context.Context, tok fireeye.Token, u string, env int) (Ref, error) {
	sub, err := s.vendor.SubmitURL(ctx, tok, fireeye.URLOptions(env, u))
	if err != nil {
		return Ref{}, upstream(OpSubmitURL, err)
	}
	listID, err := sub.ListID()
	if err != nil {
		return Ref{}, upstream(OpSubmitURL, err)
	}

	st, err := s.vendor.SubmissionStatus(ctx, tok, listID)
	if err != nil {
		return Ref{}, upstream(OpStatus, err)
	}
	ids := st.SubmissionIDs()
	if len(ids) == 0 {
		return Ref{}, upstream(OpSubmitURL, fmt.Errorf("list %s has no submissions", listID))
	}
	return Ref{ListID: listID, SubmissionID: ids[0], Env: env}, nil
}

func (s *Service) publish(ctx context.Context, user auth.User, sample db.Sample, reportID int64, ref Ref) {
	ev := events.Submitted{
		ReportID:     reportID,
		SampleID:     sample.ID,
		SHA256:       sample.SHA256,
		Env:          ref.Env,
		SubmissionID: ref.SubmissionID,
		ListID:       ref.ListID,
		UserID:       user.ID,
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish submission event",
			slog.String("sha256", sample.SHA256),
			slog.Int64("report_id", reportID),
			slog.String("error", err.Error()))
	}
}

func translate(err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
