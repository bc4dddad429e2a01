package protocol_test

import (
	"context"
	"testing"

	"github.com/pgwire/pgwire/internal/pgerr"
	"github.com/pgwire/pgwire/internal/protocol"
)

func TestBeginCommit(t *testing.T) {
	conn, fc := dialForQueries(t)
	drv := newFakeDriver(fc)

	type txOutcome struct {
		tx  *protocol.Tx
		err error
	}
	beginCh := make(chan txOutcome, 1)
	go func() {
		tx, err := conn.Begin(context.Background(), protocol.TxOptions{Isolation: protocol.IsolationSerializable})
		beginCh <- txOutcome{tx, err}
	}()
	drv.expectParseDescribeSync()
	drv.respondParseComplete(nil)
	drv.expectBindDescribeExecuteSync()
	drv.respondNoRowsCompleteStatus("BEGIN", 'T') // now inside a transaction; deferred close stays queued

	begun := <-beginCh
	if begun.err != nil {
		t.Fatalf("Begin: %v", begun.err)
	}

	commitErrCh := make(chan error, 1)
	go func() { commitErrCh <- begun.tx.Commit(context.Background()) }()
	drv.expectParseDescribeSync()
	drv.respondParseComplete(nil)
	drv.expectBindDescribeExecuteSync()
	drv.respondNoRowsCompleteStatus("COMMIT", 'I') // back to idle: flush both queued statement names
	drv.expectDeallocateN(2)

	if err := <-commitErrCh; err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !begun.tx.Finalized() {
		t.Error("expected tx to be finalized after Commit")
	}
}

func TestBeginAlreadyInTransaction(t *testing.T) {
	conn, fc := dialForQueries(t)
	drv := newFakeDriver(fc)

	firstErrCh := make(chan error, 1)
	go func() {
		_, err := conn.Begin(context.Background(), protocol.TxOptions{})
		firstErrCh <- err
	}()
	drv.expectParseDescribeSync()
	drv.respondParseComplete(nil)
	drv.expectBindDescribeExecuteSync()
	drv.respondNoRowsCompleteStatus("BEGIN", 'T')

	if err := <-firstErrCh; err != nil {
		t.Fatalf("first Begin: %v", err)
	}

	// The connection is already inside a transaction (status 'T'); a
	// second top-level Begin must be rejected without any network I/O.
	if _, err := conn.Begin(context.Background(), protocol.TxOptions{}); err == nil || !pgerr.Is(err, pgerr.KindInterface) {
		t.Fatalf("expected KindInterface for Begin on an already-open transaction, got %v", err)
	}
}

func TestSavepointRollback(t *testing.T) {
	conn, fc := dialForQueries(t)
	drv := newFakeDriver(fc)

	beginCh := make(chan *protocol.Tx, 1)
	go func() {
		tx, err := conn.Begin(context.Background(), protocol.TxOptions{})
		if err != nil {
			t.Errorf("Begin: %v", err)
		}
		beginCh <- tx
	}()
	drv.expectParseDescribeSync()
	drv.respondParseComplete(nil)
	drv.expectBindDescribeExecuteSync()
	drv.respondNoRowsCompleteStatus("BEGIN", 'T')
	tx := <-beginCh

	spCh := make(chan *protocol.Tx, 1)
	go func() {
		sp, err := tx.Begin(context.Background())
		if err != nil {
			t.Errorf("savepoint Begin: %v", err)
		}
		spCh <- sp
	}()
	drv.expectParseDescribeSync()
	drv.respondParseComplete(nil)
	drv.expectBindDescribeExecuteSync()
	drv.respondNoRowsCompleteStatus("SAVEPOINT", 'T')
	sp := <-spCh

	rollbackErrCh := make(chan error, 1)
	go func() { rollbackErrCh <- sp.Rollback(context.Background()) }()
	// ROLLBACK TO SAVEPOINT
	drv.expectParseDescribeSync()
	drv.respondParseComplete(nil)
	drv.expectBindDescribeExecuteSync()
	drv.respondNoRowsCompleteStatus("ROLLBACK", 'T')
	// RELEASE SAVEPOINT
	drv.expectParseDescribeSync()
	drv.respondParseComplete(nil)
	drv.expectBindDescribeExecuteSync()
	drv.respondNoRowsCompleteStatus("RELEASE", 'T')

	if err := <-rollbackErrCh; err != nil {
		t.Fatalf("savepoint Rollback: %v", err)
	}
	if !sp.Finalized() {
		t.Error("expected savepoint to be finalized after Rollback")
	}
	if tx.Finalized() {
		t.Error("parent transaction should be unaffected by a savepoint rollback")
	}
}
