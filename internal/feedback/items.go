package feedback

import (
	"strings"
	"unicode/utf8"
)

// itemLayout lists the line keys of one item kind. keys[0] opens a new item.
type itemLayout struct {
	keys []string
}

var (
	grammarLayout       = itemLayout{keys: []string{"❌ 原句", "✅ 建议", "💡 解释"}}
	vocabularyLayout    = itemLayout{keys: []string{"❌ 原词", "✅ 建议"}}
	pronunciationLayout = itemLayout{keys: []string{"单词", "❌ 问题", "✅ 中文提示"}}
)

// maxLabelTail bounds how far after a key we look for its colon, so a value
// that merely contains a colon is not truncated.
const maxLabelTail = 12

func parseGrammar(text string) []GrammarItem {
	rows := grammarLayout.extract(text)
	items := make([]GrammarItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, GrammarItem{Original: r[0], Suggestion: r[1], Explanation: r[2]})
	}
	return items
}

func parseVocabulary(text string) []VocabularyItem {
	rows := vocabularyLayout.extract(text)
	items := make([]VocabularyItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, VocabularyItem{Original: r[0], Suggestion: r[1]})
	}
	return items
}

func parsePronunciation(text string) []PronunciationTip {
	rows := pronunciationLayout.extract(text)
	items := make([]PronunciationTip, 0, len(rows))
	for _, r := range rows {
		items = append(items, PronunciationTip{Word: r[0], Problem: r[1], Tip: r[2]})
	}
	return items
}

// extract walks text line by line. Lines that match no key are ignored and
// rows with every field empty are dropped.
func (l itemLayout) extract(text string) [][]string {
	var rows [][]string
	cur := make([]string, len(l.keys))
	dirty := false

	flush := func() {
		if dirty && !allBlank(cur) {
			rows = append(rows, cur)
		}
		cur = make([]string, len(l.keys))
		dirty = false
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "-•*· \t")
		if line == "" {
			continue
		}
		idx, value, ok := l.match(line)
		if !ok {
			continue
		}
		if idx == 0 && dirty {
			flush()
		}
		cur[idx] = value
		dirty = true
	}
	flush()
	return rows
}

func (l itemLayout) match(line string) (int, string, bool) {
	for i, key := range l.keys {
		rest, ok := cutKey(line, key)
		if !ok {
			continue
		}
		return i, valueAfterLabel(rest), true
	}
	return 0, "", false
}

// cutKey matches key at the start of line, tolerating a variation selector
// after a leading emoji.
func cutKey(line, key string) (string, bool) {
	if rest, ok := strings.CutPrefix(line, key); ok {
		return rest, true
	}
	r, size := utf8.DecodeRuneInString(key)
	if r == utf8.RuneError || size == len(key) {
		return "", false
	}
	alt := key[:size] + variationSelector + key[size:]
	return strings.CutPrefix(line, alt)
}

// valueAfterLabel drops an optional label suffix such as "（中文）:" that sits
// between the key and its colon.
func valueAfterLabel(rest string) string {
	runes := 0
	for i, r := range rest {
		if r == ':' || r == '：' {
			return strings.TrimSpace(rest[i+utf8.RuneLen(r):])
		}
		runes++
		if runes > maxLabelTail {
			break
		}
	}
	return strings.TrimSpace(rest)
}

func allBlank(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}
