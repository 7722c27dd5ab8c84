package analysis

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fireeye-analysis/internal/auth"
	"fireeye-analysis/internal/db"
	"fireeye-analysis/internal/fireeye"
	"fireeye-analysis/internal/logging"
	"fireeye-analysis/internal/storage"
)

type harness struct {
	store   *fakeStore
	vendor  *fakeVendor
	samples *fakeSamples
	pub     *recordingPublisher
	svc     *Service
}

func newHarness(opts ...Option) *harness {
	h := &harness{
		store:   &fakeStore{},
		vendor:  &fakeVendor{},
		samples: &fakeSamples{files: map[string]string{}},
		pub:     &recordingPublisher{},
	}
	opts = append([]Option{WithLogger(logging.Discard()), WithPublisher(h.pub)}, opts...)
	h.svc = NewService(h.store, h.vendor, h.samples, opts...)
	return h
}

var alice = auth.User{ID: 1, Email: "alice@example.com"}

func TestSubmitFilesOneReportPerEnvironment(t *testing.T) {
	h := newHarness()
	smp := h.store.addSample(db.Sample{UserID: alice.ID, SHA256: "abc123", Filename: "invoice.doc"})
	h.samples.files["abc123"] = "payload"

	statuses, err := h.svc.SubmitFiles(context.Background(), "tok", alice, []FileRef{{ID: smp.ID, SHA256: "abc123"}}, []int{5, 6})
	require.NoError(t, err)
	assert.Equal(t, []ItemStatus{{SHA256: "abc123"}}, statuses)

	require.Len(t, h.store.reports, 2)
	assert.Equal(t, 2, h.store.commits)
	for i, env := range []int{5, 6} {
		rep := h.store.reports[i]
		assert.Equal(t, smp.ID, rep.SampleID)
		assert.Equal(t, ReportTypeFireEye, rep.TypeID)
		ref, err := DecodeRef(rep.Report.String)
		require.NoError(t, err)
		assert.Equal(t, env, ref.Env)
		assert.Empty(t, ref.ListID)
		assert.NotEmpty(t, ref.SubmissionID)
	}

	require.Len(t, h.vendor.fileOpts, 2)
	assert.Equal(t, fireeye.FileOptions(5), h.vendor.fileOpts[0])
	assert.Equal(t, fireeye.FileOptions(6), h.vendor.fileOpts[1])
	assert.Equal(t, []string{"invoice.doc", "invoice.doc"}, h.vendor.filenames)
	for _, tok := range h.vendor.tokens {
		assert.Equal(t, fireeye.Token("tok"), tok)
	}

	assert.Equal(t, 2, h.samples.opened)
	assert.Equal(t, h.samples.opened, h.samples.closed)

	require.Len(t, h.pub.events, 2)
	assert.Equal(t, alice.ID, h.pub.events[0].UserID)
	assert.Equal(t, h.store.reports[0].ID, h.pub.events[0].ReportID)
	assert.Equal(t, 6, h.pub.events[1].Env)
}

func TestSubmitFilesFromSampleDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "abc123"), []byte("payload"), 0o600))

	store, vendor := &fakeStore{}, &fakeVendor{}
	svc := NewService(store, vendor, storage.Dir{Root: root}, WithLogger(logging.Discard()))
	smp := store.addSample(db.Sample{UserID: alice.ID, SHA256: "abc123"})

	statuses, err := svc.SubmitFiles(context.Background(), "tok", alice, []FileRef{{ID: smp.ID, SHA256: "abc123"}}, []int{5, 6})
	require.NoError(t, err)
	assert.Equal(t, []ItemStatus{{SHA256: "abc123"}}, statuses)
	assert.Len(t, store.reports, 2)
	assert.Equal(t, 2, store.commits)
}

func TestSubmitFilesIncludesChildren(t *testing.T) {
	h := newHarness()
	parent := h.store.addSample(db.Sample{UserID: alice.ID, SHA256: "parent"})
	child := h.store.addSample(db.Sample{UserID: alice.ID, SHA256: "child", ParentID: sql.NullInt64{Int64: parent.ID, Valid: true}})
	h.samples.files["parent"] = "zip"
	h.samples.files["child"] = "exe"

	statuses, err := h.svc.SubmitFiles(context.Background(), "tok", alice, []FileRef{{ID: parent.ID, SHA256: "parent"}}, []int{5})
	require.NoError(t, err)
	assert.Equal(t, []ItemStatus{{SHA256: "parent"}, {SHA256: "child"}}, statuses)

	require.Len(t, h.store.reports, 2)
	assert.Equal(t, 1, h.store.commits)
	assert.Equal(t, parent.ID, h.store.reports[0].SampleID)
	assert.Equal(t, child.ID, h.store.reports[1].SampleID)
	// Filename falls back to the hash.
	assert.Equal(t, []string{"parent", "child"}, h.vendor.filenames)
}

func TestSubmitFilesSkipsUnavailableBytes(t *testing.T) {
	h := newHarness()
	parent := h.store.addSample(db.Sample{UserID: alice.ID, SHA256: "parent"})
	h.store.addSample(db.Sample{UserID: alice.ID, SHA256: "gone", ParentID: sql.NullInt64{Int64: parent.ID, Valid: true}})
	h.samples.files["parent"] = "zip"

	statuses, err := h.svc.SubmitFiles(context.Background(), "tok", alice, []FileRef{{ID: parent.ID, SHA256: "parent"}}, []int{5, 6})
	require.NoError(t, err)
	assert.Equal(t, []ItemStatus{{SHA256: "parent"}, {SHA256: "gone", Error: reasonFileUnavailable}}, statuses)
	assert.Len(t, h.store.reports, 2)
	assert.Len(t, h.vendor.fileOpts, 2)
}

func TestSubmitFilesNotOwned(t *testing.T) {
	h := newHarness()
	smp := h.store.addSample(db.Sample{UserID: 2, SHA256: "abc123"})
	h.samples.files["abc123"] = "payload"

	_, err := h.svc.SubmitFiles(context.Background(), "tok", alice, []FileRef{{ID: smp.ID, SHA256: "abc123"}}, []int{5})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, h.vendor.calls)
	assert.Empty(t, h.store.reports)
}

func TestSubmitFilesHashMismatch(t *testing.T) {
	h := newHarness()
	smp := h.store.addSample(db.Sample{UserID: alice.ID, SHA256: "abc123"})

	_, err := h.svc.SubmitFiles(context.Background(), "tok", alice, []FileRef{{ID: smp.ID, SHA256: "def456"}}, []int{5})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitFilesRequiresEnvironment(t *testing.T) {
	h := newHarness()
	_, err := h.svc.SubmitFiles(context.Background(), "tok", alice, []FileRef{{ID: 1, SHA256: "abc123"}}, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "dyn_analysis.fireeye", verr.Field)
	assert.Empty(t, h.vendor.calls)
}

func TestSubmitFilesUpstreamFailureKeepsEarlierEnvironments(t *testing.T) {
	h := newHarness()
	smp := h.store.addSample(db.Sample{UserID: alice.ID, SHA256: "abc123"})
	h.samples.files["abc123"] = "payload"
	h.vendor.failOnEnv = 6

	_, err := h.svc.SubmitFiles(context.Background(), "tok", alice, []FileRef{{ID: smp.ID, SHA256: "abc123"}}, []int{5, 6})
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, OpSubmitFile, upErr.Op)
	assert.Equal(t, "Failed to submit file to FireEye AX", upErr.Message())

	var apiErr *fireeye.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 500, apiErr.StatusCode)

	require.Len(t, h.store.reports, 1)
	ref, err := DecodeRef(h.store.reports[0].Report.String)
	require.NoError(t, err)
	assert.Equal(t, 5, ref.Env)
	assert.Equal(t, h.samples.opened, h.samples.closed)
}

func TestSubmitFilesStoreFailure(t *testing.T) {
	h := newHarness()
	smp := h.store.addSample(db.Sample{UserID: alice.ID, SHA256: "abc123"})
	h.samples.files["abc123"] = "payload"
	h.store.addErr = errors.New("disk full")

	_, err := h.svc.SubmitFiles(context.Background(), "tok", alice, []FileRef{{ID: smp.ID, SHA256: "abc123"}}, []int{5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, h.pub.events)
}

func TestSubmitFilesPublishFailureIsNotFatal(t *testing.T) {
	h := newHarness()
	h.pub.err = errors.New("nats down")
	smp := h.store.addSample(db.Sample{UserID: alice.ID, SHA256: "abc123"})
	h.samples.files["abc123"] = "payload"

	statuses, err := h.svc.SubmitFiles(context.Background(), "tok", alice, []FileRef{{ID: smp.ID, SHA256: "abc123"}}, []int{5})
	require.NoError(t, err)
	assert.Len(t, statuses, 1)
	assert.Len(t, h.store.reports, 1)
}

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"cert.europa.eu", "http://cert.europa.eu"},
		{"http://a.example", "http://a.example"},
		{"https://a.example/x?y=1", "https://a.example/x?y=1"},
	}
	for _, tc := range cases {
		got, err := NormalizeURL(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := NormalizeURL("")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "No URL to submit", verr.Message)
}

func TestURLHash(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", URLHash(""))
	assert.Len(t, URLHash("http://cert.europa.eu"), 64)
}

func TestSubmitURLsPrefixesScheme(t *testing.T) {
	h := newHarness()

	statuses, err := h.svc.SubmitURLs(context.Background(), "tok", alice, []string{"cert.europa.eu"}, []int{6})
	require.NoError(t, err)

	want := URLHash("http://cert.europa.eu")
	assert.Equal(t, []ItemStatus{{SHA256: want}}, statuses)

	require.Len(t, h.vendor.urlOpts, 1)
	assert.Equal(t, fireeye.URLOptions(6, "http://cert.europa.eu"), h.vendor.urlOpts[0])
	assert.Equal(t, []string{"submit_url", "status:list-1"}, h.vendor.calls)

	require.Len(t, h.store.samples, 1)
	smp := h.store.samples[0]
	assert.Equal(t, "http://cert.europa.eu", smp.Filename)
	assert.Equal(t, want, smp.SHA256)
	assert.Equal(t, alice.ID, smp.UserID)
	for _, v := range []string{smp.MD5, smp.SHA1, smp.SHA512, smp.CTPH} {
		assert.Equal(t, "N/A", v)
	}

	require.Len(t, h.store.reports, 1)
	assert.Equal(t, smp.ID, h.store.reports[0].SampleID)
	ref, err := DecodeRef(h.store.reports[0].Report.String)
	require.NoError(t, err)
	assert.Equal(t, Ref{ListID: "list-1", SubmissionID: "sub-of-list-1", Env: 6}, ref)

	require.Len(t, h.pub.events, 1)
	assert.Equal(t, "list-1", h.pub.events[0].ListID)
}

func TestSubmitURLsOneSamplePerURL(t *testing.T) {
	h := newHarness()

	statuses, err := h.svc.SubmitURLs(context.Background(), "tok", alice, []string{"a.example", "https://b.example"}, []int{5, 6})
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
	assert.Len(t, h.store.samples, 2)
	assert.Len(t, h.store.reports, 4)
	assert.Equal(t, 2, h.store.commits)
}

func TestSubmitURLsValidatesBeforeRemoteCalls(t *testing.T) {
	h := newHarness()

	_, err := h.svc.SubmitURLs(context.Background(), "tok", alice, []string{"a.example", ""}, []int{5})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, h.vendor.calls)
	assert.Empty(t, h.store.samples)
}

func TestSubmitURLsListWithoutSubmissions(t *testing.T) {
	h := newHarness()
	h.vendor.statuses = map[string]string{"list-1": `{"response":{"error":"bad url","state":"ERROR"}}`}

	_, err := h.svc.SubmitURLs(context.Background(), "tok", alice, []string{"a.example"}, []int{5})
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, OpSubmitURL, upErr.Op)
	assert.Empty(t, h.store.samples)
}
