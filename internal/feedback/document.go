// Package feedback turns the coaching text produced by the language model
// into a structured Document.
package feedback

// GrammarItem is one sentence-level correction.
type GrammarItem struct {
	Original    string `json:"original"`
	Suggestion  string `json:"suggestion"`
	Explanation string `json:"explanation"`
}

// VocabularyItem is one word or phrase upgrade.
type VocabularyItem struct {
	Original   string `json:"original"`
	Suggestion string `json:"suggestion"`
}

// PronunciationTip is one pronunciation hint.
type PronunciationTip struct {
	Word    string `json:"word"`
	Problem string `json:"problem"`
	Tip     string `json:"tip"`
}

// Document is the parsed feedback for one practice attempt. Slices are never
// nil so callers and JSON clients always see every field.
type Document struct {
	OriginalTranscript string             `json:"original_transcript"`
	Grammar            []GrammarItem      `json:"grammar"`
	Vocabulary         []VocabularyItem   `json:"vocabulary"`
	Pronunciation      []PronunciationTip `json:"pronunciation"`
	Summary            string             `json:"summary"`
}

// Empty returns a document with all fields blank.
func Empty() Document {
	return Document{
		Grammar:       []GrammarItem{},
		Vocabulary:    []VocabularyItem{},
		Pronunciation: []PronunciationTip{},
	}
}

// IsEmpty reports whether the document carries no content at all.
func (d Document) IsEmpty() bool {
	return d.OriginalTranscript == "" &&
		len(d.Grammar) == 0 &&
		len(d.Vocabulary) == 0 &&
		len(d.Pronunciation) == 0 &&
		d.Summary == ""
}
