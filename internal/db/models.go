package db

import "database/sql"

type User struct {
	ID         int64  `db:"id"`
	Email      string `db:"email"`
	APIKeyHash string `db:"api_key_hash"`
}

type Sample struct {
	ID       int64         `db:"id"`
	UserID   int64         `db:"user_id"`
	ParentID sql.NullInt64 `db:"parent_id"`
	Filename string        `db:"filename"`
	SHA256   string        `db:"sha256"`
	MD5      string        `db:"md5"`
	SHA1     string        `db:"sha1"`
	SHA512   string        `db:"sha512"`
	CTPH     string        `db:"ctph"`
}

// Report is one sandbox run of a sample. Report holds the serialized
// submission reference and is NULL when nothing was recorded.
type Report struct {
	ID       int64          `db:"id"`
	SampleID int64          `db:"sample_id"`
	TypeID   int            `db:"type_id"`
	Report   sql.NullString `db:"report"`
}
