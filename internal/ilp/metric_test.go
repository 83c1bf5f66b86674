package ilp

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	protocol "github.com/influxdata/line-protocol"
)

// stubMetric is a protocol.Metric with arbitrary field values.
type stubMetric struct {
	name   string
	tags   []*protocol.Tag
	fields []*protocol.Field
	tm     time.Time
}

func (m *stubMetric) Name() string                 { return m.name }
func (m *stubMetric) TagList() []*protocol.Tag     { return m.tags }
func (m *stubMetric) FieldList() []*protocol.Field { return m.fields }
func (m *stubMetric) Time() time.Time              { return m.tm }

func TestWriteMetric_Point(t *testing.T) {
	ts := time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)
	p := write.NewPoint(
		"device_state",
		map[string]string{"protocol": "knx", "device_id": "light-01"},
		map[string]interface{}{"on": true, "level": 75, "power": 12.5, "scene": "evening"},
		ts,
	)

	b := NewBuffer(0)
	if err := b.WriteMetric(p); err != nil {
		t.Fatalf("WriteMetric() error = %v", err)
	}

	// NewPoint sorts tags and fields by key.
	want := "device_state,device_id=light-01,protocol=knx level=75i,on=t,power=12.5,scene=\"evening\" 1770292800000000000\n"
	if got := string(b.Bytes()); got != want {
		t.Errorf("Bytes() =\n  %q\nwant\n  %q", got, want)
	}
}

func TestWriteMetric_ZeroTimeUsesAtNow(t *testing.T) {
	p := write.NewPointWithMeasurement("x").AddField("b", 3.5)

	b := NewBuffer(0)
	if err := b.WriteMetric(p); err != nil {
		t.Fatalf("WriteMetric() error = %v", err)
	}
	if got, want := string(b.Bytes()), "x b=3.5\n"; got != want {
		t.Errorf("Bytes() = %q, want %q", got, want)
	}
}

func TestWriteMetric_FieldTypes(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    string
		wantErr error
	}{
		{"int", int(-3), "t v=-3i\n", nil},
		{"int8", int8(8), "t v=8i\n", nil},
		{"int16", int16(16), "t v=16i\n", nil},
		{"int32", int32(32), "t v=32i\n", nil},
		{"uint64 in range", uint64(math.MaxInt64), "t v=9223372036854775807i\n", nil},
		{"float32", float32(0.5), "t v=0.5\n", nil},
		{"uint64 overflow", uint64(math.MaxInt64) + 1, "", ErrInvalidAPICall},
		{"unsupported type", []byte("raw"), "", ErrInvalidAPICall},
		{"string with line feed", "a\nb", "", ErrInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &stubMetric{name: "t", fields: []*protocol.Field{{Key: "v", Value: tt.value}}}
			b := NewBuffer(0)
			err := b.WriteMetric(m)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("WriteMetric() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("WriteMetric() error = %v", err)
			}
			if got := string(b.Bytes()); got != tt.want {
				t.Errorf("Bytes() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteMetric_FailureRollsBackRow(t *testing.T) {
	b := NewBuffer(0)
	writeRow(t, b, table("ok"), colInt("v", 1), at(1))
	before := string(b.buf)

	m := &stubMetric{
		name: "bad",
		tags: []*protocol.Tag{{Key: "s", Value: "x"}},
		fields: []*protocol.Field{
			{Key: "good", Value: 1.5},
			{Key: "", Value: 2.5},
		},
	}
	if err := b.WriteMetric(m); !errors.Is(err, ErrInvalidIdentifier) {
		t.Fatalf("WriteMetric() error = %v, want ErrInvalidIdentifier", err)
	}
	if got := string(b.buf); got != before {
		t.Errorf("buffer = %q after failed metric, want %q", got, before)
	}
	if b.InRow() {
		t.Error("InRow() = true after failed metric")
	}
	if b.Rows() != 1 {
		t.Errorf("Rows() = %d, want 1", b.Rows())
	}
}

func TestWriteMetric_RejectsOpenRow(t *testing.T) {
	b := NewBuffer(0)
	writeRow(t, b, table("open"))

	err := b.WriteMetric(write.NewPointWithMeasurement("x").AddField("v", 1))
	if !errors.Is(err, ErrInvalidAPICall) {
		t.Fatalf("WriteMetric() error = %v, want ErrInvalidAPICall", err)
	}
	if !b.InRow() {
		t.Error("open row was discarded by a rejected WriteMetric")
	}
}

func TestWriteMetric_Nil(t *testing.T) {
	if err := NewBuffer(0).WriteMetric(nil); !errors.Is(err, ErrInvalidAPICall) {
		t.Errorf("WriteMetric(nil) error = %v, want ErrInvalidAPICall", err)
	}
}

// TestRoundTrip_Parser encodes rows and decodes them with the reference
// line-protocol parser.
func TestRoundTrip_Parser(t *testing.T) {
	ts := time.Date(2026, 10, 16, 8, 30, 0, 123456789, time.UTC)

	b := NewBuffer(0)
	writeRow(t, b,
		table("climate"),
		symbol("room", "living room"),
		symbol("zone", "a,b=c"),
		colFloat("temp", 21.25),
		colInt("humidity", 45),
		colBool("heating", true),
		colString("note", `said "hi" C:\dir`),
		at(ts.UnixNano()),
		table("power meter"),
		symbol("phase", "L1"),
		colFloat("watts", -0.001),
		at(ts.UnixNano()+1),
	)

	parser := protocol.NewParser(protocol.NewMetricHandler())
	metrics, err := parser.Parse(b.Bytes())
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", b.Bytes(), err)
	}
	if len(metrics) != 2 {
		t.Fatalf("parsed %d metrics, want 2", len(metrics))
	}

	first := metrics[0]
	if first.Name() != "climate" {
		t.Errorf("Name() = %q, want climate", first.Name())
	}
	if !first.Time().Equal(ts) {
		t.Errorf("Time() = %v, want %v", first.Time(), ts)
	}
	wantTags := map[string]string{"room": "living room", "zone": "a,b=c"}
	for _, tag := range first.TagList() {
		if wantTags[tag.Key] != tag.Value {
			t.Errorf("tag %s = %q, want %q", tag.Key, tag.Value, wantTags[tag.Key])
		}
		delete(wantTags, tag.Key)
	}
	if len(wantTags) != 0 {
		t.Errorf("missing tags: %v", wantTags)
	}

	wantFields := map[string]interface{}{
		"temp":     21.25,
		"humidity": int64(45),
		"heating":  true,
		"note":     `said "hi" C:\dir`,
	}
	for _, f := range first.FieldList() {
		if wantFields[f.Key] != f.Value {
			t.Errorf("field %s = %#v, want %#v", f.Key, f.Value, wantFields[f.Key])
		}
		delete(wantFields, f.Key)
	}
	if len(wantFields) != 0 {
		t.Errorf("missing fields: %v", wantFields)
	}

	second := metrics[1]
	if second.Name() != "power meter" {
		t.Errorf("Name() = %q, want %q", second.Name(), "power meter")
	}
	if fl := second.FieldList(); len(fl) != 1 || fl[0].Value != -0.001 {
		t.Errorf("FieldList() = %v, want watts=-0.001", fl)
	}
}

// TestRoundTrip_Metric feeds parsed metrics back through WriteMetric.
func TestRoundTrip_Metric(t *testing.T) {
	input := "sensor,device_id=t-01,room=kitchen temp=19.5,ok=f,count=7i 1700000000000000000\n"

	parser := protocol.NewParser(protocol.NewMetricHandler())
	metrics, err := parser.Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	b := NewBuffer(0)
	for _, m := range metrics {
		if err := b.WriteMetric(m); err != nil {
			t.Fatalf("WriteMetric() error = %v", err)
		}
	}
	if got := string(b.Bytes()); got != input {
		t.Errorf("Bytes() = %q, want %q", got, input)
	}
}
