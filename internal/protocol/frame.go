package protocol

import (
	"bytes"
	"encoding/binary"
)

// Decode parses one server-to-client message out of buf. It returns the
// decoded message and the number of bytes consumed. When buf holds fewer
// than 5 bytes, or the declared length exceeds len(buf), it returns
// (nil, 0, nil) — the caller must read more bytes and retry. The length
// field is inclusive of itself (4 bytes) but excludes the leading type
// byte, so consumed = 1 + length.
func Decode(buf []byte) (Message, int, error) {
	if len(buf) < 5 {
		return nil, 0, nil
	}
	typ := buf[0]
	length := int(binary.BigEndian.Uint32(buf[1:5]))
	if length < 4 {
		return nil, 0, newErr(KindInternal, "invalid message length %d for type %q", length, typ)
	}
	total := 1 + length
	if len(buf) < total {
		return nil, 0, nil
	}
	body := buf[5:total]

	msg, err := decodeBody(typ, body)
	if err != nil {
		return nil, 0, err
	}
	return msg, total, nil
}

func decodeBody(typ byte, body []byte) (Message, error) {
	switch typ {
	case 'R':
		return decodeAuthentication(body)
	case 'K':
		if len(body) < 8 {
			return nil, newErr(KindInternal, "BackendKeyData too short")
		}
		return BackendKeyData{
			PID: int32(binary.BigEndian.Uint32(body[0:4])),
			Key: int32(binary.BigEndian.Uint32(body[4:8])),
		}, nil
	case 'S':
		name, rest, err := readCString(body)
		if err != nil {
			return nil, err
		}
		value, _, err := readCString(rest)
		if err != nil {
			return nil, err
		}
		return ParameterStatus{Name: name, Value: value}, nil
	case 'Z':
		if len(body) < 1 {
			return nil, newErr(KindInternal, "ReadyForQuery too short")
		}
		return ReadyForQuery{Status: TxStatus(body[0])}, nil
	case 'T':
		return decodeRowDescription(body)
	case 'D':
		return decodeDataRow(body)
	case 'C':
		tag, _, err := readCString(body)
		if err != nil {
			return nil, err
		}
		return CommandComplete{Tag: tag}, nil
	case 'I':
		return EmptyQueryResponse{}, nil
	case '1':
		return ParseComplete{}, nil
	case '2':
		return BindComplete{}, nil
	case '3':
		return CloseComplete{}, nil
	case 'n':
		return NoData{}, nil
	case 's':
		return PortalSuspended{}, nil
	case 't':
		return decodeParameterDescription(body)
	case 'E':
		fields, _, err := decodeFields(body)
		if err != nil {
			return nil, err
		}
		return ErrorResponse{Fields: fields}, nil
	case 'N':
		fields, _, err := decodeFields(body)
		if err != nil {
			return nil, err
		}
		return NoticeResponse{Fields: fields}, nil
	case 'A':
		return decodeNotification(body)
	default:
		return nil, newErr(KindInternal, "unknown server message type %q", typ)
	}
}

func decodeAuthentication(body []byte) (Message, error) {
	if len(body) < 4 {
		return nil, newErr(KindInternal, "Authentication message too short")
	}
	kind := AuthKind(int32(binary.BigEndian.Uint32(body[0:4])))
	msg := Authentication{Kind: kind}
	switch kind {
	case AuthMD5Password:
		if len(body) < 8 {
			return nil, newErr(KindInternal, "AuthenticationMD5Password too short")
		}
		copy(msg.Salt[:], body[4:8])
	case AuthSASL, AuthSASLContinue, AuthSASLFinal:
		msg.Data = append([]byte(nil), body[4:]...)
	}
	return msg, nil
}

// decodeFields parses a sequence of (byte code, C-string) pairs terminated
// by a single zero byte, as used by ErrorResponse and NoticeResponse. It
// returns the field map and the number of bytes consumed (including the
// terminator), fixing the two documented source bugs: the decoder must
// advance its own cursor on every iteration (not re-read from the start),
// and it must report how much of body it consumed.
func decodeFields(body []byte) (map[byte]string, int, error) {
	fields := make(map[byte]string)
	idx := 0
	for {
		if idx >= len(body) {
			return nil, 0, newErr(KindInternal, "truncated error/notice field list")
		}
		code := body[idx]
		if code == 0 {
			idx++
			return fields, idx, nil
		}
		idx++
		value, rest, err := readCString(body[idx:])
		if err != nil {
			return nil, 0, err
		}
		fields[code] = value
		idx += len(body[idx:]) - len(rest)
	}
}

func decodeRowDescription(body []byte) (Message, error) {
	if len(body) < 2 {
		return nil, newErr(KindInternal, "RowDescription too short")
	}
	count := int(binary.BigEndian.Uint16(body[0:2]))
	rest := body[2:]
	fields := make([]FieldDescription, 0, count)
	for i := 0; i < count; i++ {
		name, r, err := readCString(rest)
		if err != nil {
			return nil, err
		}
		rest = r
		if len(rest) < 18 {
			return nil, newErr(KindInternal, "RowDescription field truncated")
		}
		fd := FieldDescription{
			Name:       name,
			TableOID:   binary.BigEndian.Uint32(rest[0:4]),
			ColumnAttr: int16(binary.BigEndian.Uint16(rest[4:6])),
			TypeOID:    binary.BigEndian.Uint32(rest[6:10]),
			TypeLen:    int16(binary.BigEndian.Uint16(rest[10:12])),
			TypeMod:    int32(binary.BigEndian.Uint32(rest[12:16])),
			Format:     FieldFormat(int16(binary.BigEndian.Uint16(rest[16:18]))),
		}
		fields = append(fields, fd)
		rest = rest[18:]
	}
	return RowDescription{Fields: fields}, nil
}

func decodeDataRow(body []byte) (Message, error) {
	if len(body) < 2 {
		return nil, newErr(KindInternal, "DataRow too short")
	}
	count := int(binary.BigEndian.Uint16(body[0:2]))
	rest := body[2:]
	cols := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		if len(rest) < 4 {
			return nil, newErr(KindInternal, "DataRow column length truncated")
		}
		n := int32(binary.BigEndian.Uint32(rest[0:4]))
		rest = rest[4:]
		if n < 0 {
			cols = append(cols, nil)
			continue
		}
		if len(rest) < int(n) {
			return nil, newErr(KindInternal, "DataRow column value truncated")
		}
		cols = append(cols, append([]byte(nil), rest[:n]...))
		rest = rest[n:]
	}
	return DataRow{Columns: cols}, nil
}

func decodeParameterDescription(body []byte) (Message, error) {
	if len(body) < 2 {
		return nil, newErr(KindInternal, "ParameterDescription too short")
	}
	count := int(binary.BigEndian.Uint16(body[0:2]))
	rest := body[2:]
	oids := make([]uint32, 0, count)
	for i := 0; i < count; i++ {
		if len(rest) < 4 {
			return nil, newErr(KindInternal, "ParameterDescription truncated")
		}
		oids = append(oids, binary.BigEndian.Uint32(rest[0:4]))
		rest = rest[4:]
	}
	return ParameterDescription{ParamOIDs: oids}, nil
}

func decodeNotification(body []byte) (Message, error) {
	if len(body) < 4 {
		return nil, newErr(KindInternal, "NotificationResponse too short")
	}
	pid := int32(binary.BigEndian.Uint32(body[0:4]))
	channel, rest, err := readCString(body[4:])
	if err != nil {
		return nil, err
	}
	payload, _, err := readCString(rest)
	if err != nil {
		return nil, err
	}
	return NotificationResponse{PID: pid, Channel: channel, Payload: payload}, nil
}

func readCString(buf []byte) (string, []byte, error) {
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), buf[i+1:], nil
		}
	}
	return "", nil, newErr(KindInternal, "unterminated C-string")
}

// Encode appends the wire form of a client-to-server message to w.
func Encode(w *bytes.Buffer, msg Message) error {
	switch m := msg.(type) {
	case StartupMessage:
		return encodeStartup(w, m)
	case SSLRequest:
		w.Write(i32be(8))
		w.Write(i32be(80877103))
		return nil
	case PasswordMessage:
		return encodeTyped(w, 'p', func(b *bytes.Buffer) {
			b.Write(m.Password)
			b.WriteByte(0)
		})
	case SASLInitialResponse:
		return encodeTyped(w, 'p', func(b *bytes.Buffer) {
			b.WriteString(m.Mechanism)
			b.WriteByte(0)
			if m.Data == nil {
				b.Write(i32be(-1))
				return
			}
			b.Write(i32be(int32(len(m.Data))))
			b.Write(m.Data)
		})
	case SASLResponse:
		return encodeTyped(w, 'p', func(b *bytes.Buffer) { b.Write(m.Data) })
	case Query:
		return encodeTyped(w, 'Q', func(b *bytes.Buffer) {
			b.WriteString(m.SQL)
			b.WriteByte(0)
		})
	case Parse:
		return encodeTyped(w, 'P', func(b *bytes.Buffer) {
			b.WriteString(m.StmtName)
			b.WriteByte(0)
			b.WriteString(m.SQL)
			b.WriteByte(0)
			b.Write(i16be(int16(len(m.ParamOIDs))))
			for _, oid := range m.ParamOIDs {
				b.Write(u32be(oid))
			}
		})
	case Bind:
		return encodeBind(w, m)
	case Describe:
		return encodeTyped(w, 'D', func(b *bytes.Buffer) {
			b.WriteByte(byte(m.Kind))
			b.WriteString(m.Name)
			b.WriteByte(0)
		})
	case Execute:
		return encodeTyped(w, 'E', func(b *bytes.Buffer) {
			b.WriteString(m.Portal)
			b.WriteByte(0)
			b.Write(i32be(m.MaxRows))
		})
	case Sync:
		return encodeTyped(w, 'S', func(*bytes.Buffer) {})
	case Flush:
		return encodeTyped(w, 'H', func(*bytes.Buffer) {})
	case Terminate:
		return encodeTyped(w, 'X', func(*bytes.Buffer) {})
	case Close:
		return encodeTyped(w, 'C', func(b *bytes.Buffer) {
			b.WriteByte(byte(m.Kind))
			b.WriteString(m.Name)
			b.WriteByte(0)
		})
	default:
		return newErr(KindInternal, "unsupported outbound message type %T", msg)
	}
}

func encodeStartup(w *bytes.Buffer, m StartupMessage) error {
	var body bytes.Buffer
	body.Write(u32be(m.Version))
	for _, kv := range m.Params {
		body.WriteString(kv.Key)
		body.WriteByte(0)
		body.WriteString(kv.Value)
		body.WriteByte(0)
	}
	body.WriteByte(0)
	w.Write(i32be(int32(4 + body.Len())))
	w.Write(body.Bytes())
	return nil
}

func encodeBind(w *bytes.Buffer, m Bind) error {
	return encodeTyped(w, 'B', func(b *bytes.Buffer) {
		b.WriteString(m.Portal)
		b.WriteByte(0)
		b.WriteString(m.StmtName)
		b.WriteByte(0)
		b.Write(i16be(int16(len(m.ParamFormats))))
		for _, f := range m.ParamFormats {
			b.Write(i16be(f))
		}
		b.Write(i16be(int16(len(m.Params))))
		for _, p := range m.Params {
			if p == nil {
				b.Write(i32be(-1))
				continue
			}
			b.Write(i32be(int32(len(p))))
			b.Write(p)
		}
		b.Write(i16be(int16(len(m.ResultFormats))))
		for _, f := range m.ResultFormats {
			b.Write(i16be(f))
		}
	})
}

// encodeTyped writes [type:1][length:4][body] where length counts itself
// plus body but not the type byte.
func encodeTyped(w *bytes.Buffer, typ byte, fill func(*bytes.Buffer)) error {
	var body bytes.Buffer
	fill(&body)
	w.WriteByte(typ)
	w.Write(i32be(int32(4 + body.Len())))
	w.Write(body.Bytes())
	return nil
}

func i32be(v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return b
}

func u32be(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func i16be(v int16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(v))
	return b
}
