package protocol

import (
	"context"
	"fmt"
)

// Isolation names the SQL standard isolation levels BEGIN accepts.
type Isolation string

const (
	IsolationDefault       Isolation = ""
	IsolationReadCommitted Isolation = "READ COMMITTED"
	IsolationRepeatable    Isolation = "REPEATABLE READ"
	IsolationSerializable  Isolation = "SERIALIZABLE"
)

// RWMode names BEGIN's READ ONLY / READ WRITE clause.
type RWMode string

const (
	RWDefault   RWMode = ""
	RWReadOnly  RWMode = "READ ONLY"
	RWReadWrite RWMode = "READ WRITE"
)

// TxOptions configures a top-level BEGIN.
type TxOptions struct {
	Isolation   Isolation
	RWMode      RWMode
	Deferrable  *bool // nil = unspecified
}

// Tx is a scoped transaction or, when nested, a savepoint. Begin/Commit/
// Rollback issue the corresponding SQL directly against the owning Conn.
type Tx struct {
	conn       *Conn
	parent     *Tx
	savepoint  string // "" for a top-level transaction
	finalized  bool
}

// Begin opens a top-level transaction. It fails with an interface error if
// the connection is already inside a transaction started outside this
// scope (e.g. a raw "BEGIN" issued by the caller), since mixing manual and
// scoped transactions is not supported.
func (c *Conn) Begin(ctx context.Context, opts TxOptions) (*Tx, error) {
	if c.InTransaction() {
		return nil, newErr(KindInterface, "connection already has an open transaction")
	}
	sql := "BEGIN"
	if opts.Isolation != IsolationDefault {
		sql += " ISOLATION LEVEL " + string(opts.Isolation)
	}
	if opts.RWMode != RWDefault {
		sql += " " + string(opts.RWMode)
	}
	if opts.Deferrable != nil {
		if *opts.Deferrable {
			sql += " DEFERRABLE"
		} else {
			sql += " NOT DEFERRABLE"
		}
	}
	if _, err := c.Execute(ctx, sql); err != nil {
		return nil, err
	}
	return &Tx{conn: c}, nil
}

// Begin opens a nested transaction as a savepoint. It fails with an
// interface error if tx has already been finalized (committed or rolled
// back) by the caller.
func (tx *Tx) Begin(ctx context.Context) (*Tx, error) {
	if tx.finalized {
		return nil, newErr(KindInterface, "transaction scope already finalized")
	}
	name := fmt.Sprintf("sp_%d", tx.conn.counter.Add(1))
	if _, err := tx.conn.Execute(ctx, "SAVEPOINT "+name); err != nil {
		return nil, err
	}
	return &Tx{conn: tx.conn, parent: tx, savepoint: name}, nil
}

// Commit ends the scope successfully: COMMIT for a top-level transaction,
// RELEASE SAVEPOINT for a nested one. Further statements issued through
// the owning Conn after Commit are no longer part of this scope.
func (tx *Tx) Commit(ctx context.Context) error {
	if tx.finalized {
		return nil
	}
	tx.finalized = true
	if tx.savepoint == "" {
		_, err := tx.conn.Execute(ctx, "COMMIT")
		return err
	}
	_, err := tx.conn.Execute(ctx, "RELEASE SAVEPOINT "+tx.savepoint)
	return err
}

// Rollback ends the scope with failure: ROLLBACK for a top-level
// transaction, ROLLBACK TO SAVEPOINT followed by RELEASE SAVEPOINT for a
// nested one (PostgreSQL leaves a savepoint live after rolling back to it;
// the driver always releases it too so a repeated Rollback is a no-op).
func (tx *Tx) Rollback(ctx context.Context) error {
	if tx.finalized {
		return nil
	}
	tx.finalized = true
	if tx.savepoint == "" {
		_, err := tx.conn.Execute(ctx, "ROLLBACK")
		return err
	}
	if _, err := tx.conn.Execute(ctx, "ROLLBACK TO SAVEPOINT "+tx.savepoint); err != nil {
		return err
	}
	_, err := tx.conn.Execute(ctx, "RELEASE SAVEPOINT "+tx.savepoint)
	return err
}

// Finalized reports whether Commit or Rollback has already run.
func (tx *Tx) Finalized() bool { return tx.finalized }
