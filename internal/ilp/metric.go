package ilp

import (
	"math"

	protocol "github.com/influxdata/line-protocol"
)

// WriteMetric encodes a complete line-protocol metric as one row.
//
// Tags become symbols and fields become columns, in the order the metric
// lists them. A zero Time() ends the row with AtNow.
//
// Supported field types are bool, all signed integers, uint64 values up to
// math.MaxInt64, float32, float64 and string. If any part of the metric is
// rejected the whole row is discarded and the buffer is unchanged.
func (b *Buffer) WriteMetric(m protocol.Metric) error {
	if m == nil {
		return apiErrorf("write metric: nil metric")
	}
	if b.InRow() {
		return apiErrorf("write metric %q: previous row (%s) not terminated", m.Name(), b.state)
	}

	if err := b.writeMetric(m); err != nil {
		b.DiscardRow()
		return err
	}
	return nil
}

func (b *Buffer) writeMetric(m protocol.Metric) error {
	if err := b.Table(m.Name()); err != nil {
		return err
	}
	for _, tag := range m.TagList() {
		if err := b.Symbol(tag.Key, tag.Value); err != nil {
			return err
		}
	}
	for _, field := range m.FieldList() {
		if err := b.writeField(field); err != nil {
			return err
		}
	}

	ts := m.Time()
	if ts.IsZero() {
		return b.AtNow()
	}
	return b.At(ts.UnixNano())
}

func (b *Buffer) writeField(f *protocol.Field) error {
	switch v := f.Value.(type) {
	case bool:
		return b.ColumnBool(f.Key, v)
	case int:
		return b.ColumnInt(f.Key, int64(v))
	case int8:
		return b.ColumnInt(f.Key, int64(v))
	case int16:
		return b.ColumnInt(f.Key, int64(v))
	case int32:
		return b.ColumnInt(f.Key, int64(v))
	case int64:
		return b.ColumnInt(f.Key, v)
	case uint64:
		if v > math.MaxInt64 {
			return apiErrorf("column %q: uint64 value %d overflows int64", f.Key, v)
		}
		return b.ColumnInt(f.Key, int64(v))
	case float32:
		return b.ColumnFloat(f.Key, float64(v))
	case float64:
		return b.ColumnFloat(f.Key, v)
	case string:
		return b.ColumnString(f.Key, v)
	default:
		return apiErrorf("column %q: unsupported field type %T", f.Key, f.Value)
	}
}

// WriteMetric encodes m as one row. See Buffer.WriteMetric.
func (s *Sender) WriteMetric(m protocol.Metric) error {
	if err := s.usable(); err != nil {
		return err
	}
	return s.buffer.WriteMetric(m)
}
