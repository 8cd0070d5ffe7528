package feedback

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Kind identifies which part of a Document a section fills.
type Kind int

const (
	// KindIgnored marks sections whose content is dropped.
	KindIgnored Kind = iota
	KindTranscript
	KindGrammar
	KindVocabulary
	KindPronunciation
	KindSummary
)

const variationSelector = "\uFE0F"

// Marker introduces a section when its Icon opens a line. Icon is matched
// with or without a trailing variation selector; the first matching label after the icon is stripped.
type Marker struct {
	Icon   string
	Labels []string
	Kind   Kind
}

// DefaultMarkers is the section layout requested by the analysis prompt.
var DefaultMarkers = []Marker{
	{Icon: "🌿", Labels: []string{"原始转录"}, Kind: KindTranscript},
	{Icon: "✏️", Labels: []string{"语法建议"}, Kind: KindGrammar},
	{Icon: "💬", Labels: []string{"词汇升级"}, Kind: KindVocabulary},
	{Icon: "🔈", Labels: []string{"发音提示"}, Kind: KindPronunciation},
	{Icon: "⭐️", Labels: []string{"一句话总结（中文）", "一句话总结(中文)", "一句话总结"}, Kind: KindSummary},
	{Icon: "🌟", Labels: []string{"额外要求"}, Kind: KindIgnored},
}

// Parser splits feedback text on a marker set. The zero value is not usable;
// build one with NewParser.
type Parser struct {
	markers []Marker
}

// NewParser creates a Parser for markers. Labels are tried longest first.
func NewParser(markers []Marker) *Parser {
	ms := make([]Marker, len(markers))
	for i, m := range markers {
		labels := append([]string(nil), m.Labels...)
		sort.SliceStable(labels, func(a, b int) bool { return len(labels[a]) > len(labels[b]) })
		ms[i] = Marker{Icon: strings.TrimSuffix(m.Icon, variationSelector), Labels: labels, Kind: m.Kind}
	}
	return &Parser{markers: ms}
}

var defaultParser = NewParser(DefaultMarkers)

// Parse parses raw with DefaultMarkers.
func Parse(raw string) Document {
	return defaultParser.Parse(raw)
}

type fragment struct {
	kind Kind
	body string
}

// Parse never fails. Sections that are missing or malformed leave their
// fields empty; text before the first marker is discarded.
func (p *Parser) Parse(raw string) Document {
	doc := Empty()
	for _, f := range p.split(raw) {
		switch f.kind {
		case KindTranscript:
			doc.OriginalTranscript = f.body
		case KindGrammar:
			doc.Grammar = append(doc.Grammar, parseGrammar(f.body)...)
		case KindVocabulary:
			doc.Vocabulary = append(doc.Vocabulary, parseVocabulary(f.body)...)
		case KindPronunciation:
			doc.Pronunciation = append(doc.Pronunciation, parsePronunciation(f.body)...)
		case KindSummary:
			doc.Summary = f.body
		}
	}
	return doc
}

// split scans raw once and cuts it at every marker icon that opens a line.
// Leading blanks before the icon are allowed; an icon elsewhere in a line is
// section content.
func (p *Parser) split(raw string) []fragment {
	type hit struct {
		marker   *Marker
		start    int
		bodyFrom int
	}

	var hits []hit
	lineStart := true
	for i := 0; i < len(raw); {
		if lineStart {
			if m, n := p.matchAt(raw[i:]); m != nil {
				hits = append(hits, hit{marker: m, start: i, bodyFrom: i + n})
				i += n
				lineStart = false
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(raw[i:])
		switch r {
		case '\n':
			lineStart = true
		case ' ', '\t', '\r':
		default:
			lineStart = false
		}
		i += size
	}

	frags := make([]fragment, 0, len(hits))
	for idx, h := range hits {
		end := len(raw)
		if idx+1 < len(hits) {
			end = hits[idx+1].start
		}
		frags = append(frags, fragment{
			kind: h.marker.Kind,
			body: stripLabel(raw[h.bodyFrom:end], h.marker.Labels),
		})
	}
	return frags
}

// matchAt returns the marker whose icon starts s and the icon's byte length.
func (p *Parser) matchAt(s string) (*Marker, int) {
	for i := range p.markers {
		m := &p.markers[i]
		if m.Icon == "" || !strings.HasPrefix(s, m.Icon) {
			continue
		}
		n := len(m.Icon)
		if strings.HasPrefix(s[n:], variationSelector) {
			n += len(variationSelector)
		}
		return m, n
	}
	return nil, 0
}

func stripLabel(body string, labels []string) string {
	body = strings.TrimSpace(body)
	for _, l := range labels {
		if rest, ok := strings.CutPrefix(body, l); ok {
			body = strings.TrimLeft(rest, ":： \t")
			break
		}
	}
	return strings.TrimSpace(body)
}
