package protocol_test

import "github.com/pgwire/pgwire/internal/protocol/faketest"

// fakeDriver groups the repetitive backend-side message sequences shared by
// the Execute/Prepare/Tx tests, scripted against a single fake connection.
type fakeDriver struct{ fc *faketest.Conn }

func newFakeDriver(fc *faketest.Conn) *fakeDriver { return &fakeDriver{fc: fc} }

func (d *fakeDriver) expectParseDescribeSync() {
	d.fc.ExpectParse()
	d.fc.DrainUntilSync()
}

func (d *fakeDriver) respondParseComplete(paramOIDs []uint32) {
	d.fc.SendParseComplete()
	d.fc.SendParameterDescription(paramOIDs)
	d.fc.SendReadyForQuery('I')
}

func (d *fakeDriver) expectBindDescribeExecuteSync() {
	d.fc.DrainUntilSync()
}

func (d *fakeDriver) respondNoRowsCompleteStatus(tag string, status byte) {
	d.fc.SendBindComplete()
	d.fc.SendNoData()
	d.fc.SendCommandComplete(tag)
	d.fc.SendReadyForQuery(status)
}

// expectDeallocateN drains n deferred DEALLOCATE round trips, issued once
// the connection returns to idle outside any transaction.
func (d *fakeDriver) expectDeallocateN(n int) {
	for i := 0; i < n; i++ {
		d.fc.ExpectSimpleQuery()
		d.fc.SendCommandComplete("DO")
		d.fc.SendReadyForQuery('I')
	}
}
