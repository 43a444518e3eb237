package db

import "github.com/jmoiron/sqlx"

// Pool pairs the write and read handles the durable stores run on: the
// agent registry and the reference-code sequence table.
//
// SQLite keeps them separate — one serialized writer connection plus a small
// read-only pool that reads WAL snapshots concurrently with the writer.
// PostgreSQL needs no split, so both handles point at the same *sqlx.DB.
type Pool struct {
	writer *sqlx.DB
	reader *sqlx.DB
}

// NewPool wraps the writer and reader handles. Pass the same handle twice
// when the engine needs no read/write split.
func NewPool(writer, reader *sqlx.DB) *Pool {
	return &Pool{writer: writer, reader: reader}
}

// Writer is the handle for statements that take the write lock, including
// the sequence upsert and registration changes.
func (p *Pool) Writer() *sqlx.DB { return p.writer }

// Reader is the handle for SELECTs.
func (p *Pool) Reader() *sqlx.DB { return p.reader }

// Close releases both handles, tolerating the shared-handle case.
func (p *Pool) Close() error {
	err := p.writer.Close()
	if p.reader == p.writer {
		return err
	}
	if rerr := p.reader.Close(); err == nil {
		err = rerr
	}
	return err
}
