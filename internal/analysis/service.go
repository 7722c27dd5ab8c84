package analysis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"fireeye-analysis/internal/auth"
	"fireeye-analysis/internal/db"
	"fireeye-analysis/internal/events"
	"fireeye-analysis/internal/fireeye"
	"fireeye-analysis/internal/metrics"
	"fireeye-analysis/internal/storage"
)

// Vendor is the subset of the FireEye AX API the service uses.
type Vendor interface {
	Config(ctx context.Context, tok fireeye.Token) (*fireeye.Config, error)
	SubmitFile(ctx context.Context, tok fireeye.Token, opts fireeye.SubmissionOptions, filename string, file io.Reader) ([]fireeye.Submission, error)
	SubmitURL(ctx context.Context, tok fireeye.Token, opts fireeye.SubmissionOptions) (*fireeye.URLSubmission, error)
	SubmissionStatus(ctx context.Context, tok fireeye.Token, id string) (*fireeye.SubmissionStatus, error)
	SubmissionResults(ctx context.Context, tok fireeye.Token, id, infoLevel string) (json.RawMessage, error)
}

// Store persists samples and reports.
type Store interface {
	SampleByIDAndHash(ctx context.Context, scope auth.Scope, id int64, sha256 string) (*db.Sample, error)
	SampleChildren(ctx context.Context, parentID int64) ([]db.Sample, error)
	ReportsForSample(ctx context.Context, sampleID int64, typeID int) ([]db.Report, error)
	ReportByID(ctx context.Context, id int64, typeID int) (*db.Report, error)
	AddReports(ctx context.Context, reports []db.Report) error
	CreateSampleWithReports(ctx context.Context, s *db.Sample, reports []db.Report) error
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithErrorPolicy(p ErrorPolicy) Option {
	return func(s *Service) { s.policy = p }
}

type Service struct {
	store   Store
	vendor  Vendor
	samples storage.Store
	events  events.Publisher
	metrics *metrics.Metrics
	policy  ErrorPolicy
	log     *slog.Logger
}

func NewService(store Store, vendor Vendor, samples storage.Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		vendor:  vendor,
		samples: samples,
		events:  events.Nop{},
		policy:  ErrorsPending,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
