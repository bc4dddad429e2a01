package protocol

import "context"

// PreparedStatement is a server-side parsed statement created by Conn's
// Parse+Describe(statement)+Sync round trip; it can be bound and executed
// repeatedly without re-parsing the SQL text.
type PreparedStatement struct {
	conn      *Conn
	name      string
	paramOIDs []uint32
}

// Prepare parses sql and learns its inferred parameter OIDs.
func (c *Conn) Prepare(ctx context.Context, sql string) (*PreparedStatement, error) {
	if err := c.checkOwner(ctx); err != nil {
		return nil, err
	}
	name := c.nextName("stmt")
	paramOIDs, err := c.describeParams(ctx, name, sql)
	if err != nil {
		return nil, err
	}
	return &PreparedStatement{conn: c, name: name, paramOIDs: paramOIDs}, nil
}

// ParamOIDs returns the server-inferred parameter type OIDs.
func (s *PreparedStatement) ParamOIDs() []uint32 {
	return append([]uint32(nil), s.paramOIDs...)
}

// Execute binds params and runs the statement to completion (Execute with
// max_rows=0, then Sync).
func (s *PreparedStatement) Execute(ctx context.Context, params ...any) (*Result, error) {
	if err := s.conn.checkOwner(ctx); err != nil {
		return nil, err
	}
	encoded, formats, err := s.conn.encodeParams(s.paramOIDs, params)
	if err != nil {
		return nil, err
	}
	res, err := s.conn.bindAndExecute(ctx, s.name, encoded, formats)
	if flushErr := s.conn.flushDeferredClose(ctx); flushErr != nil && err == nil {
		err = flushErr
	}
	return res, err
}

// Close marks the statement for deferred deallocation (§4.3), flushed
// immediately if the connection is currently outside a transaction.
func (s *PreparedStatement) Close(ctx context.Context) error {
	s.conn.deferClose(s.name)
	return s.conn.flushDeferredClose(ctx)
}
