package protocol

import "context"

// Cursor is a server-side portal iterated in chunks via Execute/Flush,
// holding the connection's ready-gate claimed for its entire lifetime
// (Flush does not trigger a ReadyForQuery, so the extended-query round
// stays open across batches until Close issues the final Sync).
type Cursor struct {
	conn      *Conn
	stmtName  string
	portal    string
	fetchSize int32
	fields    []FieldDescription
	exhausted bool
}

// NewCursor parses sql, binds params to a portal, and prepares to fetch in
// batches of fetchSize rows. The connection must already be inside a
// transaction (§4.4): a cursor outside one fails with a programming error
// before anything is sent.
func (c *Conn) NewCursor(ctx context.Context, sql string, fetchSize int32, params ...any) (*Cursor, error) {
	if err := c.checkOwner(ctx); err != nil {
		return nil, err
	}
	if !c.InTransaction() {
		return nil, newErr(KindProgramming, "cursor requires an open transaction")
	}

	stmtName := c.nextName("stmt")
	paramOIDs, err := c.describeParams(ctx, stmtName, sql)
	if err != nil {
		return nil, err
	}
	encoded, formats, err := c.encodeParams(paramOIDs, params)
	if err != nil {
		c.deferClose(stmtName)
		return nil, err
	}

	if err := c.claimReady(ctx); err != nil {
		c.deferClose(stmtName)
		return nil, err
	}
	ch := make(chan Message)
	c.mu.Lock()
	c.waitCh = ch
	c.mu.Unlock()

	portal := c.nextName("portal")
	if err := c.send(Bind{Portal: portal, StmtName: stmtName, ParamFormats: formats, Params: encoded, ResultFormats: []int16{c.format.WireCode()}}); err != nil {
		c.endRequest()
		return nil, err
	}
	if err := c.send(Describe{Kind: DescribePortal, Name: portal}); err != nil {
		c.endRequest()
		return nil, err
	}
	if err := c.send(Flush{}); err != nil {
		c.endRequest()
		return nil, err
	}

	cur := &Cursor{conn: c, stmtName: stmtName, portal: portal, fetchSize: fetchSize}
	// Flush after Describe(portal) yields exactly BindComplete followed by
	// RowDescription or NoData, then goes silent until the first Execute.
	for i := 0; i < 2; i++ {
		msg, err := c.awaitReply(ctx)
		if err != nil {
			c.endRequest()
			return nil, err
		}
		switch m := msg.(type) {
		case BindComplete:
		case RowDescription:
			cur.fields = m.Fields
		case NoData:
		case ErrorResponse:
			c.endRequest()
			return nil, databaseError(m.Fields, sql)
		default:
			c.endRequest()
			return nil, newErr(KindInternal, "unexpected message %T opening cursor", msg)
		}
	}
	return cur, nil
}

// Fields returns the result column descriptions collected at creation.
func (cur *Cursor) Fields() []FieldDescription { return cur.fields }

// FetchNext retrieves the next batch of up to fetchSize rows. more reports
// whether additional batches remain; when more is false the cursor has
// reached CommandComplete and no further FetchNext calls should be made
// (Close should be called instead).
func (cur *Cursor) FetchNext(ctx context.Context) (rows []Row, more bool, err error) {
	if cur.exhausted {
		return nil, false, nil
	}
	c := cur.conn
	if err := c.send(Execute{Portal: cur.portal, MaxRows: cur.fetchSize}); err != nil {
		return nil, false, err
	}
	if err := c.send(Flush{}); err != nil {
		return nil, false, err
	}
	for {
		msg, err := c.awaitReply(ctx)
		if err != nil {
			return nil, false, err
		}
		switch m := msg.(type) {
		case DataRow:
			row, err := c.decodeRow(cur.fields, m)
			if err != nil {
				return nil, false, err
			}
			rows = append(rows, row)
		case PortalSuspended:
			return rows, true, nil
		case CommandComplete:
			cur.exhausted = true
			c.setRowCount(m.Tag)
			return rows, false, nil
		case ErrorResponse:
			return nil, false, databaseError(m.Fields, "")
		default:
			return nil, false, newErr(KindInternal, "unexpected message %T fetching cursor", msg)
		}
	}
}

// Close releases the portal and the connection's held ready-gate claim.
// Safe to call once the cursor is exhausted or abandoned early.
func (cur *Cursor) Close(ctx context.Context) error {
	c := cur.conn
	defer c.endRequest()

	if err := c.send(Close{Kind: ClosePortal, Name: cur.portal}); err != nil {
		return err
	}
	if err := c.send(Sync{}); err != nil {
		return err
	}
	var requestErr error
	for {
		msg, err := c.awaitReply(ctx)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case CloseComplete:
		case ErrorResponse:
			requestErr = databaseError(m.Fields, "")
		case ReadyForQuery:
			c.deferClose(cur.stmtName)
			if flushErr := c.flushDeferredClose(ctx); flushErr != nil && requestErr == nil {
				requestErr = flushErr
			}
			return requestErr
		default:
			return newErr(KindInternal, "unexpected message %T closing cursor", msg)
		}
	}
}
