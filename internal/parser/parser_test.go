package parser

import (
	"testing"

	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/stretchr/testify/require"
)

func TestParse_CarrierCodeLine(t *testing.T) {
	out := New().Parse("順豐快遞SF3280813696247，入庫重量 0.14 KG")
	require.Len(t, out, 1)
	require.Equal(t, "SF3280813696247", out[0].TrackingNumber)
	require.Equal(t, "0.15", out[0].WeightKg.StringFixed(2))
	require.Equal(t, "順豐快遞SF3280813696247，入庫重量 0.14 KG", out[0].SourceLine)
}

func TestParse_CarrierCodeKeepsLetterSuffix(t *testing.T) {
	out := New().Parse("RR123456789CN 入庫重量 0.3KG\nSF12345678ABC 入庫重量 1KG")
	require.Len(t, out, 2)
	require.Equal(t, "RR123456789CN", out[0].TrackingNumber)
	require.Equal(t, "0.30", out[0].WeightKg.StringFixed(2))
	require.Equal(t, "SF12345678ABC", out[1].TrackingNumber)
	require.Equal(t, "1.00", out[1].WeightKg.StringFixed(2))
}

func TestParse_TokenIsNeverTruncated(t *testing.T) {
	// номер, который не укладывается в шаблон целиком, не режется до префикса
	require.Empty(t, New().Parse("SF12345678ABCD 入庫重量 1KG"))
	require.Empty(t, New().Parse("7730123456789X 入庫重量 1KG"))
}

func TestParse_NumericLine(t *testing.T) {
	out := New().Parse("中通 773012345678，入庫重量 1.21kg")
	require.Len(t, out, 1)
	require.Equal(t, "773012345678", out[0].TrackingNumber)
	require.Equal(t, "1.25", out[0].WeightKg.StringFixed(2))
}

func TestParse_LabeledFallback(t *testing.T) {
	out := New().Parse("單號：YT8812 重量：0.5")
	require.Len(t, out, 1)
	require.Equal(t, "YT8812", out[0].TrackingNumber)
	require.Equal(t, "0.50", out[0].WeightKg.StringFixed(2))
}

func TestParse_FullWidthCharacters(t *testing.T) {
	out := New().Parse("順豐ＳＦ１２３４５６７８９０，入庫重量：０.３ＫＧ")
	require.Len(t, out, 1)
	require.Equal(t, "SF1234567890", out[0].TrackingNumber)
	require.Equal(t, "0.30", out[0].WeightKg.StringFixed(2))
}

func TestParse_CaseInsensitive(t *testing.T) {
	out := New().Parse("jt0012345678 入庫重量 2 kg")
	require.Len(t, out, 1)
	require.Equal(t, "JT0012345678", out[0].TrackingNumber)
	require.Equal(t, "2.00", out[0].WeightKg.StringFixed(2))
}

func TestParse_PriorityCarrierBeatsLabeled(t *testing.T) {
	line := "單號:XYZ999 順豐SF1234567890 入庫重量 0.5 KG 重量:0.9"
	out := New().Parse(line)
	require.Len(t, out, 1)
	require.Equal(t, "SF1234567890", out[0].TrackingNumber)
	require.Equal(t, "0.50", out[0].WeightKg.StringFixed(2))
}

func TestParse_SkipsUnrecognizedAndBlankLines(t *testing.T) {
	require.Empty(t, New().Parse("謝謝訂購"))
	require.Empty(t, New().Parse("\n\n   \n"))
	require.Empty(t, New().Parse(""))
}

func TestParse_KeepsOrderAndDuplicates(t *testing.T) {
	raw := `早安～今天到貨如下
順豐快遞SF3280813696247，入庫重量 0.14 KG

中通 773012345678，入庫重量 1.21 KG
謝謝訂購
順豐快遞SF3280813696247，入庫重量 0.2 KG`
	out := New().Parse(raw)
	require.Len(t, out, 3)
	require.Equal(t, "SF3280813696247", out[0].TrackingNumber)
	require.Equal(t, "773012345678", out[1].TrackingNumber)
	require.Equal(t, "SF3280813696247", out[2].TrackingNumber)
	require.Equal(t, "0.20", out[2].WeightKg.StringFixed(2))
}

func TestDefaultRecognizers_Order(t *testing.T) {
	rs := DefaultRecognizers()
	require.Len(t, rs, 3)
	require.Equal(t, RecognizerCarrierCode, rs[0].Name())
	require.Equal(t, RecognizerNumericNumber, rs[1].Name())
	require.Equal(t, RecognizerLabeled, rs[2].Name())
}

type stubRecognizer struct {
	name  string
	match bool
	calls int
}

func (s *stubRecognizer) Name() string { return s.name }
func (s *stubRecognizer) TryMatch(line string) (models.InboundMatch, bool) {
	s.calls++
	if !s.match {
		return models.InboundMatch{}, false
	}
	return models.InboundMatch{TrackingNumber: s.name}, true
}

func TestParse_StopsAtFirstRecognizer(t *testing.T) {
	first := &stubRecognizer{name: "first", match: true}
	second := &stubRecognizer{name: "second", match: true}
	out := New(first, second).Parse("anything")
	require.Len(t, out, 1)
	require.Equal(t, "first", out[0].TrackingNumber)
	require.Equal(t, 0, second.calls)
}
