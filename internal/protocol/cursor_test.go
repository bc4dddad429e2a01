package protocol_test

import (
	"context"
	"testing"

	"github.com/pgwire/pgwire/internal/protocol"
)

func TestCursorFetchAndClose(t *testing.T) {
	conn, fc := dialForQueries(t)
	drv := newFakeDriver(fc)

	txCh := make(chan *protocol.Tx, 1)
	go func() {
		tx, err := conn.Begin(context.Background(), protocol.TxOptions{})
		if err != nil {
			t.Errorf("Begin: %v", err)
		}
		txCh <- tx
	}()
	drv.expectParseDescribeSync()
	drv.respondParseComplete(nil)
	drv.expectBindDescribeExecuteSync()
	drv.respondNoRowsCompleteStatus("BEGIN", 'T')
	<-txCh

	type curOutcome struct {
		cur *protocol.Cursor
		err error
	}
	curCh := make(chan curOutcome, 1)
	go func() {
		cur, err := conn.NewCursor(context.Background(), "SELECT id FROM widgets", 2)
		curCh <- curOutcome{cur, err}
	}()

	drv.expectParseDescribeSync()
	drv.respondParseComplete(nil)
	// Bind + Describe(portal) + Flush: no Sync anchors this round, so drain
	// the three client messages directly before answering.
	fc.DrainN(3)
	fc.SendBindComplete()
	fc.SendRowDescription([]string{"id"})

	opened := <-curCh
	if opened.err != nil {
		t.Fatalf("NewCursor: %v", opened.err)
	}
	cur := opened.cur

	type fetchOutcome struct {
		rows []protocol.Row
		more bool
		err  error
	}
	fetchCh := make(chan fetchOutcome, 1)
	go func() {
		rows, more, err := cur.FetchNext(context.Background())
		fetchCh <- fetchOutcome{rows, more, err}
	}()

	// Execute + Flush, again with no Sync.
	fc.DrainN(2)
	fc.SendDataRow([]byte("1"))
	fc.SendDataRow([]byte("2"))
	fc.SendCommandComplete("SELECT 2")

	fetched := <-fetchCh
	if fetched.err != nil {
		t.Fatalf("FetchNext: %v", fetched.err)
	}
	if len(fetched.rows) != 2 || fetched.rows[0].Columns[0] != "1" || fetched.rows[1].Columns[0] != "2" {
		t.Fatalf("unexpected rows: %+v", fetched.rows)
	}
	if fetched.more {
		t.Error("expected more=false after CommandComplete")
	}

	closeErrCh := make(chan error, 1)
	go func() { closeErrCh <- cur.Close(context.Background()) }()
	fc.DrainN(1) // Close(portal)
	fc.DrainUntilSync()
	fc.SendCloseComplete()
	fc.SendReadyForQuery('T')
	// Close defers the cursor's own statement name; still inside the
	// transaction, so flushDeferredClose leaves it queued rather than
	// issuing a DEALLOCATE round trip here.

	if err := <-closeErrCh; err != nil {
		t.Fatalf("Cursor.Close: %v", err)
	}
}
