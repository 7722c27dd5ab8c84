package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"fireeye-analysis/internal/auth"
)

var ErrNotFound = errors.New("not found")

const sampleColumns = `id, user_id, parent_id, filename, sha256, md5, sha1, sha512, ctph`

const reportColumns = `id, sample_id, type_id, report`

// Repo runs the queries behind the analysis endpoints. Queries are written
// with ? placeholders and rebound for the connected driver.
type Repo struct {
	DB *sqlx.DB
}

func NewRepo(dbx *sqlx.DB) *Repo {
	return &Repo{DB: dbx}
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func (r *Repo) CreateUser(ctx context.Context, email, apiKey string) (*User, error) {
	u := User{Email: email, APIKeyHash: auth.HashToken(apiKey)}
	q := r.DB.Rebind(`insert into users(email, api_key_hash) values(?, ?) returning id`)
	if err := r.DB.QueryRowxContext(ctx, q, u.Email, u.APIKeyHash).Scan(&u.ID); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func (r *Repo) UserByAPIKey(ctx context.Context, apiKey string) (*User, error) {
	var u User
	q := r.DB.Rebind(`select id, email, api_key_hash from users where api_key_hash=?`)
	if err := r.DB.GetContext(ctx, &u, q, auth.HashToken(apiKey)); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *Repo) CreateSample(ctx context.Context, s *Sample) error {
	return insertSample(ctx, r.DB, s)
}

// SampleByIDAndHash resolves a sample only when both identifiers match and
// the scope admits its owner.
func (r *Repo) SampleByIDAndHash(ctx context.Context, scope auth.Scope, id int64, sha256 string) (*Sample, error) {
	q := `select ` + sampleColumns + ` from samples where id=? and sha256=?`
	args := []any{id, sha256}
	if owner, restricted := scope.Owner(); restricted {
		q += ` and user_id=?`
		args = append(args, owner)
	}
	var s Sample
	if err := r.DB.GetContext(ctx, &s, r.DB.Rebind(q), args...); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *Repo) SampleChildren(ctx context.Context, parentID int64) ([]Sample, error) {
	children := make([]Sample, 0)
	q := r.DB.Rebind(`select ` + sampleColumns + ` from samples where parent_id=? order by id`)
	if err := r.DB.SelectContext(ctx, &children, q, parentID); err != nil {
		return nil, fmt.Errorf("select children of %d: %w", parentID, err)
	}
	return children, nil
}

func (r *Repo) ReportsForSample(ctx context.Context, sampleID int64, typeID int) ([]Report, error) {
	reports := make([]Report, 0)
	q := r.DB.Rebind(`select ` + reportColumns + ` from reports where sample_id=? and type_id=? order by id`)
	if err := r.DB.SelectContext(ctx, &reports, q, sampleID, typeID); err != nil {
		return nil, fmt.Errorf("select reports of %d: %w", sampleID, err)
	}
	return reports, nil
}

func (r *Repo) ReportByID(ctx context.Context, id int64, typeID int) (*Report, error) {
	var rep Report
	q := r.DB.Rebind(`select ` + reportColumns + ` from reports where id=? and type_id=?`)
	if err := r.DB.GetContext(ctx, &rep, q, id, typeID); err != nil {
		return nil, notFound(err)
	}
	return &rep, nil
}

// AddReports inserts reports in a single transaction and fills in their ids.
func (r *Repo) AddReports(ctx context.Context, reports []Report) error {
	return WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		for i := range reports {
			if err := insertReport(ctx, tx, &reports[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateSampleWithReports inserts s and attaches reports to it atomically.
func (r *Repo) CreateSampleWithReports(ctx context.Context, s *Sample, reports []Report) error {
	return WithTx(ctx, r.DB, func(tx *sqlx.Tx) error {
		if err := insertSample(ctx, tx, s); err != nil {
			return err
		}
		for i := range reports {
			reports[i].SampleID = s.ID
			if err := insertReport(ctx, tx, &reports[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

type queryer interface {
	QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row
	Rebind(query string) string
}

func insertSample(ctx context.Context, q queryer, s *Sample) error {
	stmt := q.Rebind(`insert into samples(user_id, parent_id, filename, sha256, md5, sha1, sha512, ctph)
		values(?, ?, ?, ?, ?, ?, ?, ?) returning id`)
	err := q.QueryRowxContext(ctx, stmt, s.UserID, s.ParentID, s.Filename, s.SHA256, s.MD5, s.SHA1, s.SHA512, s.CTPH).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert sample %s: %w", s.SHA256, err)
	}
	return nil
}

func insertReport(ctx context.Context, q queryer, rep *Report) error {
	stmt := q.Rebind(`insert into reports(sample_id, type_id, report) values(?, ?, ?) returning id`)
	if err := q.QueryRowxContext(ctx, stmt, rep.SampleID, rep.TypeID, rep.Report).Scan(&rep.ID); err != nil {
		return fmt.Errorf("insert report for sample %d: %w", rep.SampleID, err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
