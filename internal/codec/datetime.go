package codec

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pgwire/pgwire/internal/pgerr"
)

// pgEpoch is the zero point PostgreSQL's binary date/time formats count
// from, in contrast to the Unix epoch Go's time package is built around.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05.999999"
	timestampLayout = "2006-01-02 15:04:05.999999"
	timestampTzOut  = "2006-01-02 15:04:05.999999-07"
	timetzOut       = "15:04:05.999999-07"
)

var dateCodec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		if format == Text {
			return []byte(t.Format(dateLayout)), nil
		}
		days := int32(t.UTC().Sub(pgEpoch).Hours() / 24)
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(days))
		return buf, nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Text {
			t, err := time.Parse(dateLayout, string(raw))
			if err != nil {
				return nil, pgerr.Wrap(pgerr.KindData, err, "parsing date text %q", raw)
			}
			return t, nil
		}
		if len(raw) != 4 {
			return nil, pgerr.New(pgerr.KindData, "date: expected 4 bytes, got %d", len(raw))
		}
		days := int32(binary.BigEndian.Uint32(raw))
		return pgEpoch.AddDate(0, 0, int(days)), nil
	},
}

var timeCodec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		if format == Text {
			return []byte(t.Format(timeLayout)), nil
		}
		micros := timeOfDayMicros(t)
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(micros))
		return buf, nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Text {
			t, err := time.Parse(timeLayout, string(raw))
			if err != nil {
				return nil, pgerr.Wrap(pgerr.KindData, err, "parsing time text %q", raw)
			}
			return t, nil
		}
		if len(raw) != 8 {
			return nil, pgerr.New(pgerr.KindData, "time: expected 8 bytes, got %d", len(raw))
		}
		micros := int64(binary.BigEndian.Uint64(raw))
		return pgEpoch.Add(time.Duration(micros) * time.Microsecond), nil
	},
}

// timestampCodec builds the timestamp (withTZ=false) or timestamptz
// (withTZ=true) codec; the wire formats are identical, only the text layout
// differs by whether a zone offset is appended.
func timestampCodec(withTZ bool) Codec {
	return Codec{
		Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
			t, err := toTime(v)
			if err != nil {
				return nil, err
			}
			if format == Text {
				if withTZ {
					return []byte(t.Format(timestampTzOut)), nil
				}
				return []byte(t.UTC().Format(timestampLayout)), nil
			}
			micros := t.UTC().Sub(pgEpoch).Microseconds()
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, uint64(micros))
			return buf, nil
		},
		Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
			if format == Text {
				layout := timestampLayout
				if withTZ {
					layout = timestampTzOut
				}
				t, err := time.Parse(layout, string(raw))
				if err != nil {
					return nil, pgerr.Wrap(pgerr.KindData, err, "parsing timestamp text %q", raw)
				}
				return t, nil
			}
			if len(raw) != 8 {
				return nil, pgerr.New(pgerr.KindData, "timestamp: expected 8 bytes, got %d", len(raw))
			}
			micros := int64(binary.BigEndian.Uint64(raw))
			return pgEpoch.Add(time.Duration(micros) * time.Microsecond), nil
		},
	}
}

// timetzCodec: binary is 8 bytes of time-of-day microseconds followed by a
// 4-byte signed zone offset in seconds west of UTC.
var timetzCodec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		t, err := toTime(v)
		if err != nil {
			return nil, err
		}
		if format == Text {
			return []byte(t.Format(timetzOut)), nil
		}
		micros := timeOfDayMicros(t)
		_, offset := t.Zone()
		buf := make([]byte, 12)
		binary.BigEndian.PutUint64(buf[:8], uint64(micros))
		binary.BigEndian.PutUint32(buf[8:], uint32(int32(-offset)))
		return buf, nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Text {
			t, err := time.Parse(timetzOut, string(raw))
			if err != nil {
				return nil, pgerr.Wrap(pgerr.KindData, err, "parsing timetz text %q", raw)
			}
			return t, nil
		}
		if len(raw) != 12 {
			return nil, pgerr.New(pgerr.KindData, "timetz: expected 12 bytes, got %d", len(raw))
		}
		micros := int64(binary.BigEndian.Uint64(raw[:8]))
		offsetWest := int32(binary.BigEndian.Uint32(raw[8:]))
		loc := time.FixedZone("", int(-offsetWest))
		return time.Date(2000, 1, 1, 0, 0, 0, 0, loc).Add(time.Duration(micros) * time.Microsecond), nil
	},
}

// intervalCodec stores an interval as Go's time.Duration, which collapses
// the wire format's separate months/days/microseconds components into a
// single duration using 30-day months and 24-hour days — the same
// approximation PostgreSQL itself documents for interval-to-duration
// comparisons, adequate for a driver that does not do calendar arithmetic.
var intervalCodec = Codec{
	Encode: func(_ *Registry, format Format, v any) ([]byte, error) {
		d, ok := v.(time.Duration)
		if !ok {
			return nil, pgerr.New(pgerr.KindProgramming, "expected time.Duration, got %T", v)
		}
		if format == Text {
			return []byte(formatInterval(d)), nil
		}
		const microsPerDay = 24 * 3600 * 1000000
		micros := d.Microseconds()
		days := int32(micros / microsPerDay)
		micros -= int64(days) * microsPerDay
		buf := make([]byte, 16)
		binary.BigEndian.PutUint64(buf[:8], uint64(micros))
		binary.BigEndian.PutUint32(buf[8:12], uint32(days))
		// months left zero: a calendar month has no fixed length, so whole
		// days carry the day-scale component instead of being folded upward.
		return buf, nil
	},
	Decode: func(_ *Registry, format Format, raw []byte) (any, error) {
		if format == Text {
			return 0, pgerr.New(pgerr.KindInternal, "interval text decoding is not supported")
		}
		if len(raw) != 16 {
			return nil, pgerr.New(pgerr.KindData, "interval: expected 16 bytes, got %d", len(raw))
		}
		micros := int64(binary.BigEndian.Uint64(raw[:8]))
		days := int32(binary.BigEndian.Uint32(raw[8:12]))
		months := int32(binary.BigEndian.Uint32(raw[12:16]))
		total := time.Duration(micros) * time.Microsecond
		total += time.Duration(days) * 24 * time.Hour
		total += time.Duration(months) * 30 * 24 * time.Hour
		return total, nil
	},
}

func formatInterval(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d/time.Second))
}

func toTime(v any) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, pgerr.New(pgerr.KindProgramming, "expected time.Time, got %T", v)
	}
	return t, nil
}

func timeOfDayMicros(t time.Time) int64 {
	h, m, s := t.Clock()
	return int64(h)*3600e6 + int64(m)*60e6 + int64(s)*1e6 + int64(t.Nanosecond())/1000
}
