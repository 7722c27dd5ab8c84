package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"fireeye-analysis/internal/auth"
	"fireeye-analysis/internal/db"
	"fireeye-analysis/internal/events"
	"fireeye-analysis/internal/fireeye"
	"fireeye-analysis/internal/storage"
)

type fakeStore struct {
	samples []db.Sample
	reports []db.Report
	commits int
	addErr  error
}

func (f *fakeStore) addSample(s db.Sample) db.Sample {
	s.ID = int64(len(f.samples) + 1)
	f.samples = append(f.samples, s)
	return s
}

func (f *fakeStore) addReport(sampleID int64, payload *string) db.Report {
	rep := db.Report{ID: int64(len(f.reports) + 1), SampleID: sampleID, TypeID: ReportTypeFireEye}
	if payload != nil {
		rep.Report.String, rep.Report.Valid = *payload, true
	}
	f.reports = append(f.reports, rep)
	return rep
}

func (f *fakeStore) SampleByIDAndHash(_ context.Context, scope auth.Scope, id int64, sha256 string) (*db.Sample, error) {
	for _, s := range f.samples {
		if s.ID != id || s.SHA256 != sha256 {
			continue
		}
		if owner, restricted := scope.Owner(); restricted && s.UserID != owner {
			continue
		}
		cp := s
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) SampleChildren(_ context.Context, parentID int64) ([]db.Sample, error) {
	var out []db.Sample
	for _, s := range f.samples {
		if s.ParentID.Valid && s.ParentID.Int64 == parentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ReportsForSample(_ context.Context, sampleID int64, typeID int) ([]db.Report, error) {
	var out []db.Report
	for _, r := range f.reports {
		if r.SampleID == sampleID && r.TypeID == typeID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) ReportByID(_ context.Context, id int64, typeID int) (*db.Report, error) {
	for _, r := range f.reports {
		if r.ID == id && r.TypeID == typeID {
			cp := r
			return &cp, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) AddReports(_ context.Context, reports []db.Report) error {
	if f.addErr != nil {
		return f.addErr
	}
	for i := range reports {
		reports[i].ID = int64(len(f.reports) + 1)
		f.reports = append(f.reports, reports[i])
	}
	f.commits++
	return nil
}

func (f *fakeStore) CreateSampleWithReports(ctx context.Context, s *db.Sample, reports []db.Report) error {
	*s = f.addSample(*s)
	for i := range reports {
		reports[i].SampleID = s.ID
	}
	return f.AddReports(ctx, reports)
}

type fakeVendor struct {
	calls      []string
	tokens     []fireeye.Token
	fileOpts   []fireeye.SubmissionOptions
	filenames  []string
	urlOpts    []fireeye.SubmissionOptions
	config     *fireeye.Config
	configErr  error
	failOnEnv  int
	nextID     int
	statuses   map[string]string
	statusErr  error
	results    map[string]string
	infoLevels []string
}

func (v *fakeVendor) Config(_ context.Context, tok fireeye.Token) (*fireeye.Config, error) {
	v.calls = append(v.calls, "config")
	v.tokens = append(v.tokens, tok)
	return v.config, v.configErr
}

func (v *fakeVendor) SubmitFile(_ context.Context, tok fireeye.Token, opts fireeye.SubmissionOptions, filename string, file io.Reader) ([]fireeye.Submission, error) {
	v.calls = append(v.calls, "submit_file")
	v.tokens = append(v.tokens, tok)
	if _, err := io.ReadAll(file); err != nil {
		return nil, err
	}
	if v.failOnEnv != 0 && opts.Profiles[0] == v.failOnEnv {
		return nil, &fireeye.APIError{StatusCode: 500, Message: "appliance busy"}
	}
	v.fileOpts = append(v.fileOpts, opts)
	v.filenames = append(v.filenames, filename)
	v.nextID++
	return []fireeye.Submission{{ID: fireeye.ID(fmt.Sprint(v.nextID))}}, nil
}

func (v *fakeVendor) SubmitURL(_ context.Context, tok fireeye.Token, opts fireeye.SubmissionOptions) (*fireeye.URLSubmission, error) {
	v.calls = append(v.calls, "submit_url")
	v.tokens = append(v.tokens, tok)
	v.urlOpts = append(v.urlOpts, opts)
	v.nextID++
	var out fireeye.URLSubmission
	body := fmt.Sprintf(`{"entity":{"response":[{"id":"list-%d"}]}}`, v.nextID)
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (v *fakeVendor) SubmissionStatus(_ context.Context, tok fireeye.Token, id string) (*fireeye.SubmissionStatus, error) {
	v.calls = append(v.calls, "status:"+id)
	v.tokens = append(v.tokens, tok)
	if v.statusErr != nil {
		return nil, v.statusErr
	}
	body, ok := v.statuses[id]
	if !ok && strings.HasPrefix(id, "list-") {
		body = fmt.Sprintf(`{"status":"In Progress","response":[{"id":"sub-of-%s"}]}`, id)
	} else if !ok {
		body = `{"submissionStatus":"Queued"}`
	}
	var st fireeye.SubmissionStatus
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (v *fakeVendor) SubmissionResults(_ context.Context, tok fireeye.Token, id, infoLevel string) (json.RawMessage, error) {
	v.calls = append(v.calls, "results:"+id)
	v.tokens = append(v.tokens, tok)
	v.infoLevels = append(v.infoLevels, infoLevel)
	body, ok := v.results[id]
	if !ok {
		return nil, errors.New("no such submission")
	}
	return json.RawMessage(body), nil
}

type trackedFile struct {
	io.Reader
	closed *int
}

func (t trackedFile) Close() error {
	*t.closed++
	return nil
}

type fakeSamples struct {
	files  map[string]string
	opened int
	closed int
}

func (f *fakeSamples) Open(_ context.Context, sha256 string) (io.ReadCloser, error) {
	body, ok := f.files[sha256]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, sha256)
	}
	f.opened++
	return trackedFile{Reader: strings.NewReader(body), closed: &f.closed}, nil
}

type recordingPublisher struct {
	events []events.Submitted
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Submitted) error {
	p.events = append(p.events, ev)
	return p.err
}
