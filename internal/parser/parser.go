// Package parser turns pasted warehouse notices into tracking number / weight pairs.
package parser

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/BearBump/ReshipDesk/internal/weight"
	"golang.org/x/text/unicode/norm"
)

// Recognizer распознаёт одну форму строки уведомления.
type Recognizer interface {
	Name() string
	TryMatch(line string) (models.InboundMatch, bool)
}

type regexRecognizer struct {
	name string
	re   *regexp.Regexp
}

func (r *regexRecognizer) Name() string { return r.name }

// TryMatch expects a line already normalised with NFKC.
func (r *regexRecognizer) TryMatch(line string) (models.InboundMatch, bool) {
	m := r.re.FindStringSubmatch(line)
	if m == nil {
		return models.InboundMatch{}, false
	}
	w, err := weight.Parse(m[2])
	if err != nil {
		return models.InboundMatch{}, false
	}
	return models.InboundMatch{
		TrackingNumber: strings.ToUpper(m[1]),
		WeightKg:       w,
	}, true
}

const (
	RecognizerCarrierCode   = "carrier_code"
	RecognizerNumericNumber = "numeric_number"
	RecognizerLabeled       = "labeled"
)

// DefaultRecognizers returns the recognizers in priority order. The order is part of the
// contract: a line is claimed by the first recognizer that matches it.
func DefaultRecognizers() []Recognizer {
	return []Recognizer{
		// 順豐快遞SF3280813696247，入庫重量 0.14 KG
		// RR123456789CN 入庫重量 0.3KG (номер целиком, с буквенным хвостом)
		&regexRecognizer{
			name: RecognizerCarrierCode,
			re:   regexp.MustCompile(`(?i)\b([A-Z]{1,3}\d{8,}[A-Z]{0,3})\b.*?入庫重量\s*:?\s*(\d+(?:\.\d+)?)\s*KG`),
		},
		// 773012345678，入庫重量 1.2 KG
		&regexRecognizer{
			name: RecognizerNumericNumber,
			re:   regexp.MustCompile(`(?i)\b(\d{9,})\b.*?入庫重量\s*:?\s*(\d+(?:\.\d+)?)\s*KG`),
		},
		// 單號:YT1234 重量:0.5
		&regexRecognizer{
			name: RecognizerLabeled,
			re:   regexp.MustCompile(`(?i)單號\s*:\s*([A-Z0-9-]+).*?重量\s*:\s*(\d+(?:\.\d+)?)`),
		},
	}
}

type Parser struct {
	recognizers []Recognizer
}

func New(recognizers ...Recognizer) *Parser {
	if len(recognizers) == 0 {
		recognizers = DefaultRecognizers()
	}
	return &Parser{recognizers: recognizers}
}

// Parse возвращает совпадения в порядке строк. Строки без совпадений молча пропускаются,
// повторы одного номера не схлопываются.
func (p *Parser) Parse(raw string) []models.InboundMatch {
	var out []models.InboundMatch
	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if m, ok := p.matchLine(line); ok {
			out = append(out, m)
		}
	}
	return out
}

func (p *Parser) matchLine(line string) (models.InboundMatch, bool) {
	// Full-width colons, digits and latin letters are common in chat pastes.
	normalized := norm.NFKC.String(line)
	for _, r := range p.recognizers {
		if m, ok := r.TryMatch(normalized); ok {
			m.SourceLine = line
			return m, true
		}
	}
	return models.InboundMatch{}, false
}
