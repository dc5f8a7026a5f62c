package classifier

import (
	"encoding/json"
	"fmt"
	"sort"
)

// snapshot is the flat, versionless serialized form of the model state. The key set is
// fixed; any format evolution is a breaking change for consumers.
type snapshot struct {
	Categories         []string                  `json:"categories"`
	DocCount           map[string]int            `json:"docCount"`
	TotalDocuments     int                       `json:"totalDocuments"`
	Vocabulary         []string                  `json:"vocabulary"`
	VocabularySize     int                       `json:"vocabularySize"`
	WordCount          map[string]int            `json:"wordCount"`
	WordFrequencyCount map[string]map[string]int `json:"wordFrequencyCount"`
	Options            Options                   `json:"options"`
}

// requiredFields is the exact key set a serialized model must carry. FromJSON fails
// naming the field if any of them is absent or null.
var requiredFields = []string{
	"categories", "docCount", "totalDocuments", "vocabulary",
	"vocabularySize", "wordCount", "wordFrequencyCount", "options",
}

// ToJSON serializes the complete model state as a flat key/value document. The
// tokenizer function is not serializable and is omitted; everything else needed to
// exactly reconstitute the model is included.
func (c *Classifier) ToJSON() ([]byte, error) {
	vocab := make([]string, 0, len(c.vocabulary))
	for token := range c.vocabulary {
		vocab = append(vocab, token)
	}
	sort.Strings(vocab) // deterministic output for identical models

	state := snapshot{
		Categories:         append([]string{}, c.categories...),
		DocCount:           c.docCount,
		TotalDocuments:     c.totalDocuments,
		Vocabulary:         vocab,
		VocabularySize:     c.vocabularySize,
		WordCount:          c.wordCount,
		WordFrequencyCount: c.wordFreq,
		Options:            c.opts,
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return data, nil
}

// FromJSON reconstructs a classifier from a serialized model. It constructs a fresh
// classifier with the passed options (this is where a tokenizer override comes back,
// as functions don't survive serialization) and then overwrites the model state fields
// wholesale. No partial or merge restore is supported.
//
// Unparsable input is a format error. A parseable input missing any required field, or
// carrying null for one, is a format error naming that field. Internal consistency of
// the counts is trusted as given; the deserializer does not re-validate it.
func FromJSON(data []byte, opts Options) (*Classifier, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	for _, field := range requiredFields {
		val, ok := raw[field]
		if !ok || string(val) == "null" {
			return nil, fmt.Errorf("parse model: missing required field %q", field)
		}
	}

	var state snapshot
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}

	// the serialized options replace the passed ones, except for the tokenizer
	restored := state.Options
	restored.Tokenizer = opts.Tokenizer

	res, err := New(restored)
	if err != nil {
		return nil, fmt.Errorf("restore model: %w", err)
	}

	res.totalDocuments = state.TotalDocuments
	res.vocabularySize = state.VocabularySize
	for _, token := range state.Vocabulary {
		res.vocabulary[token] = true
	}
	for _, category := range state.Categories {
		res.categories = append(res.categories, category)
		res.docCount[category] = state.DocCount[category]
		res.wordCount[category] = state.WordCount[category]
		res.wordFreq[category] = state.WordFrequencyCount[category]
		if res.wordFreq[category] == nil {
			res.wordFreq[category] = make(map[string]int)
		}
	}

	return res, nil
}
