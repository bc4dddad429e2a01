package protocol

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/pgwire/pgwire/internal/codec"
	"github.com/shopspring/decimal"
)

// Param overrides the type OID a parameter is encoded with, for values
// whose Go type alone does not determine a unique PostgreSQL type (arrays,
// numeric vs. a plain string, an explicit cast).
type Param struct {
	OID   uint32
	Value any
}

// Row is one decoded result row, indexed in column order.
type Row struct {
	Columns []any
}

// Result is the outcome of Conn.Execute.
type Result struct {
	Fields      []FieldDescription
	Rows        []Row
	RowCount    int64
	HasRowCount bool
}

// Execute runs sql through the extended query protocol: Parse (with a
// unique statement name) -> Describe(statement) -> Sync to learn the
// server-inferred parameter OIDs, then (after encoding params against
// those OIDs, which surfaces overflow/shape errors before anything is
// bound) Bind -> Describe(portal) -> Execute -> Sync.
func (c *Conn) Execute(ctx context.Context, sql string, params ...any) (result *Result, err error) {
	if c.metrics != nil {
		start := time.Now()
		defer func() { c.metrics.QueryCompleted("extended", time.Since(start), err) }()
	}
	if strings.IndexByte(sql, 0) >= 0 {
		return nil, newErr(KindProgramming, "NUL byte in SQL text")
	}
	if err := c.checkOwner(ctx); err != nil {
		return nil, err
	}

	stmtName := c.nextName("stmt")
	paramOIDs, err := c.describeParams(ctx, stmtName, sql)
	if err != nil {
		return nil, err
	}

	encoded, paramFormats, err := c.encodeParams(paramOIDs, params)
	if err != nil {
		c.deferClose(stmtName)
		c.flushDeferredClose(ctx)
		return nil, err
	}

	result, err = c.bindAndExecute(ctx, stmtName, encoded, paramFormats)
	c.deferClose(stmtName)
	if flushErr := c.flushDeferredClose(ctx); flushErr != nil && err == nil {
		err = flushErr
	}
	return result, err
}

// describeParams issues Parse+Describe(statement)+Sync and returns the
// server-inferred parameter OIDs, without binding or running anything yet.
// The statement's RowDescription (or NoData) is read and discarded.
func (c *Conn) describeParams(ctx context.Context, stmtName, sql string) ([]uint32, error) {
	if err := c.claimReady(ctx); err != nil {
		return nil, err
	}
	ch := make(chan Message)
	c.mu.Lock()
	c.waitCh = ch
	c.mu.Unlock()
	defer c.endRequest()

	if err := c.send(Parse{StmtName: stmtName, SQL: sql}); err != nil {
		return nil, err
	}
	if err := c.send(Describe{Kind: DescribeStatement, Name: stmtName}); err != nil {
		return nil, err
	}
	if err := c.send(Sync{}); err != nil {
		return nil, err
	}

	var paramOIDs []uint32
	var requestErr error
	for {
		msg, err := c.awaitReply(ctx)
		if err != nil {
			return nil, err
		}
		switch m := msg.(type) {
		case ParseComplete:
		case ParameterDescription:
			paramOIDs = m.ParamOIDs
		case RowDescription, NoData:
		case ErrorResponse:
			requestErr = databaseError(m.Fields, sql)
		case ReadyForQuery:
			return paramOIDs, requestErr
		default:
			return nil, newErr(KindInternal, "unexpected message %T describing statement", msg)
		}
	}
}

// encodeParams renders Go parameter values to wire bytes against the
// server-reported paramOIDs (or the Param wrapper's explicit OID override),
// returning both the encoded bytes and the format code chosen for each.
func (c *Conn) encodeParams(paramOIDs []uint32, params []any) ([][]byte, []int16, error) {
	encoded := make([][]byte, len(params))
	formats := make([]int16, len(params))
	for i, p := range params {
		oid := codec.OIDUnknown
		if i < len(paramOIDs) && paramOIDs[i] != 0 {
			oid = paramOIDs[i]
		}
		value := p
		if tp, ok := p.(Param); ok {
			oid = tp.OID
			value = tp.Value
		} else if oid == codec.OIDUnknown {
			oid = inferOID(p)
		}
		formats[i] = c.format.WireCode()
		if value == nil {
			encoded[i] = nil
			continue
		}
		b, err := c.codec.Lookup(oid).Encode(c.codec, c.format, value)
		if err != nil {
			return nil, nil, err
		}
		encoded[i] = b
	}
	return encoded, formats, nil
}

func (c *Conn) bindAndExecute(ctx context.Context, stmtName string, params [][]byte, paramFormats []int16) (*Result, error) {
	if err := c.claimReady(ctx); err != nil {
		return nil, err
	}
	ch := make(chan Message)
	c.mu.Lock()
	c.waitCh = ch
	c.mu.Unlock()
	defer c.endRequest()

	portal := c.nextName("portal")
	resultFormat := c.format.WireCode()
	bind := Bind{
		Portal:        portal,
		StmtName:      stmtName,
		ParamFormats:  paramFormats,
		Params:        params,
		ResultFormats: []int16{resultFormat},
	}
	if err := c.send(bind); err != nil {
		return nil, err
	}
	if err := c.send(Describe{Kind: DescribePortal, Name: portal}); err != nil {
		return nil, err
	}
	if err := c.send(Execute{Portal: portal, MaxRows: 0}); err != nil {
		return nil, err
	}
	if err := c.send(Sync{}); err != nil {
		return nil, err
	}

	res := &Result{}
	var requestErr error
	for {
		msg, err := c.awaitReply(ctx)
		if err != nil {
			if ctx.Err() != nil {
				if drainErr := c.drainToReady(30 * time.Second); drainErr != nil {
					return nil, drainErr
				}
			}
			return nil, err
		}
		switch m := msg.(type) {
		case BindComplete:
		case RowDescription:
			res.Fields = m.Fields
		case NoData:
		case DataRow:
			row, err := c.decodeRow(res.Fields, m)
			if err != nil {
				requestErr = err
				continue
			}
			res.Rows = append(res.Rows, row)
		case CommandComplete:
			c.setRowCount(m.Tag)
			res.RowCount, res.HasRowCount = c.RowCount()
		case EmptyQueryResponse:
			c.setRowCount("")
			res.HasRowCount = false
		case ErrorResponse:
			requestErr = databaseError(m.Fields, "")
		case ReadyForQuery:
			if requestErr != nil {
				return nil, requestErr
			}
			return res, nil
		default:
			return nil, newErr(KindInternal, "unexpected message %T executing statement", msg)
		}
	}
}

func (c *Conn) decodeRow(fields []FieldDescription, row DataRow) (Row, error) {
	out := Row{Columns: make([]any, len(row.Columns))}
	for i, col := range row.Columns {
		if col == nil {
			out.Columns[i] = nil
			continue
		}
		var oid uint32
		format := c.format
		if i < len(fields) {
			oid = fields[i].TypeOID
			format = codec.FormatFromWireCode(int16(fields[i].Format))
		}
		v, err := c.codec.Lookup(oid).Decode(c.codec, format, col)
		if err != nil {
			return Row{}, err
		}
		out.Columns[i] = v
	}
	return out, nil
}

// deferClose adds name to the set deallocated opportunistically once the
// connection is outside a transaction, rather than issuing an explicit
// Close message synchronously (§4.3 "deferred close").
func (c *Conn) deferClose(name string) {
	c.mu.Lock()
	c.stmtsToClose[name] = struct{}{}
	c.mu.Unlock()
}

// flushDeferredClose issues a guarded DEALLOCATE for every pending
// statement name when the connection is idle (not inside a transaction,
// where deallocating would abort it). Each DEALLOCATE runs inside a DO
// block that swallows invalid_sql_statement_name, since the name may
// already have been dropped by a prior DISCARD or reconnect.
func (c *Conn) flushDeferredClose(ctx context.Context) error {
	c.mu.Lock()
	inTx := c.txStatus == TxInTx || c.txStatus == TxError
	var names []string
	if !inTx {
		for name := range c.stmtsToClose {
			names = append(names, name)
		}
	}
	c.mu.Unlock()
	if len(names) == 0 {
		return nil
	}
	for _, name := range names {
		sql := "DO $$ BEGIN EXECUTE 'DEALLOCATE \"" + name + "\"'; " +
			"EXCEPTION WHEN invalid_sql_statement_name THEN NULL; END $$;"
		if _, err := c.simpleQueryText(ctx, sql); err != nil {
			return err
		}
		c.mu.Lock()
		delete(c.stmtsToClose, name)
		c.mu.Unlock()
	}
	return nil
}

// inferOID picks a parameter's type OID from its Go type, for the common
// case where the caller has not wrapped the value in a Param override.
func inferOID(v any) uint32 {
	switch v.(type) {
	case bool:
		return codec.OIDBool
	case int16:
		return codec.OIDInt2
	case int, int32:
		return codec.OIDInt4
	case int64:
		return codec.OIDInt8
	case float32:
		return codec.OIDFloat4
	case float64:
		return codec.OIDFloat8
	case string:
		return codec.OIDText
	case []byte:
		return codec.OIDBytea
	case time.Time:
		return codec.OIDTimestampTz
	case time.Duration:
		return codec.OIDInterval
	case decimal.Decimal:
		return codec.OIDNumeric
	case netip.Prefix, netip.Addr, net.IP, *net.IPNet:
		return codec.OIDInet
	default:
		return codec.OIDUnknown
	}
}
