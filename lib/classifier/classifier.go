// Package classifier provides an online (incrementally trained) multinomial Naive Bayes
// text classifier with Laplace add-one smoothing. The primary type in this package is
// the Classifier, created with New and trained one document at a time with Learn.
//
// The classifier accumulates per-category word-frequency statistics and scores new text
// against every known category, producing a ranked list of likely categories. Categories
// and vocabulary only grow; there is no deletion or decay.
//
// Scoring is intentionally non-logarithmic: each category score is the raw prior
// probability docCount/totalDocuments plus the sum of frequency-weighted smoothed token
// probabilities. This matches the observable ranking behavior the classifier is
// specified to produce and must not be replaced with a classical log-likelihood sum.
//
// The Classifier has no internal synchronization. Callers must serialize all mutating
// calls to a given instance; concurrent Learn calls, or a Learn concurrent with a
// Categorize, require external locking.
package classifier

import (
	"log"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// defaultMatches is the number of matches CategorizeMultiple returns when no
// explicit limit is given.
const defaultMatches = 3

// Tokenizer splits normalized text into an ordered sequence of tokens. The classifier
// calls it with already case-normalized (uppercased) text, in both training and scoring.
type Tokenizer func(text string) []string

// Match is a single scored category returned by CategorizeMultiple.
type Match struct {
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

// Options configures a Classifier. The zero value is valid and uses the default
// tokenizer with no filtering.
type Options struct {
	Tokenizer     Tokenizer `json:"-"`             // override for the default tokenizer, not serializable
	MinTokenSize  int       `json:"minTokenSize"`  // tokens shorter than this are excluded from training and scoring
	IgnoredTokens []string  `json:"ignoredTokens"` // tokens excluded from training, matched case-insensitively
	IgnorePattern string    `json:"ignorePattern"` // regexp stripped from text before tokenization, training only
	Verbose       bool      `json:"verbose"`       // enables diagnostic logging, no semantic effect
}

// Classifier is an online multinomial Naive Bayes model. It holds the entire learned
// state: known categories, document counts, vocabulary and per-category token counts.
type Classifier struct {
	categories     []string                  // categories in encounter order, for stable tie-breaks
	totalDocuments int                       // training documents across all categories
	docCount       map[string]int            // category -> number of training documents
	vocabulary     map[string]bool           // distinct tokens observed, case-normalized
	vocabularySize int                       // kept consistent with vocabulary, not recomputed
	wordCount      map[string]int            // category -> total token occurrences
	wordFreq       map[string]map[string]int // category -> token -> cumulative count

	opts      Options
	tokenizer Tokenizer
	ignoreRe  *regexp.Regexp
	ignored   map[string]struct{} // normalized ignored tokens
}

// New creates an empty Classifier with the given options. Malformed options, like a
// negative MinTokenSize or an uncompilable IgnorePattern, are rejected here so that
// Learn and Categorize never fail at runtime.
func New(opts Options) (*Classifier, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	res := &Classifier{
		docCount:   make(map[string]int),
		vocabulary: make(map[string]bool),
		wordCount:  make(map[string]int),
		wordFreq:   make(map[string]map[string]int),
		opts:       opts,
		tokenizer:  opts.Tokenizer,
		ignored:    make(map[string]struct{}, len(opts.IgnoredTokens)),
	}

	if res.tokenizer == nil {
		res.tokenizer = DefaultTokenizer
	}
	if opts.IgnorePattern != "" {
		res.ignoreRe = regexp.MustCompile(opts.IgnorePattern) // validated above
	}
	for _, token := range opts.IgnoredTokens {
		res.ignored[normalize(token)] = struct{}{}
	}

	return res, nil
}

// Learn trains the classifier with a single labeled document and returns the same
// instance for chaining. A previously unseen category is registered lazily. The
// document counts toward docCount and totalDocuments even if none of its tokens pass
// the validity filter.
func (c *Classifier) Learn(text, category string) *Classifier {
	text = normalize(text)
	if c.ignoreRe != nil {
		text = c.ignoreRe.ReplaceAllString(text, "")
	}

	c.registerCategory(category)
	c.docCount[category]++
	c.totalDocuments++

	freq := frequencies(c.tokenizer(text))
	learned := 0
	for token, count := range freq {
		if !c.validToken(token) {
			continue
		}
		if !c.vocabulary[token] {
			c.vocabulary[token] = true
			c.vocabularySize++
		}
		c.wordFreq[category][token] += count
		c.wordCount[category] += count
		learned++
	}

	if c.opts.Verbose {
		log.Printf("[DEBUG] learned %d tokens for %q, vocabulary size %d, total documents %d",
			learned, category, c.vocabularySize, c.totalDocuments)
	}
	return c
}

// Categorize returns the most likely category for the text. The second return value is
// false if the classifier has no categories yet, i.e. nothing was ever learned.
func (c *Classifier) Categorize(text string) (string, bool) {
	matches := c.CategorizeMultiple(text, 1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Category, true
}

// CategorizeMultiple scores the text against every known category and returns the top
// limit matches ordered by score descending. Equal scores keep category encounter
// order. A non-positive limit requests the default of 3 matches.
//
// Scoring applies the same case normalization as training but deliberately not the
// ignore pattern or the ignored-token list; only the minimum token length filter is
// applied to query tokens.
func (c *Classifier) CategorizeMultiple(text string, limit int) []Match {
	if limit <= 0 {
		limit = defaultMatches
	}

	freq := frequencies(c.tokenizer(normalize(text)))

	matches := make([]Match, 0, len(c.categories))
	for _, category := range c.categories {
		score := float64(c.docCount[category]) / float64(c.totalDocuments)
		for token, count := range freq {
			if c.opts.MinTokenSize > 0 && utf8.RuneCountInString(token) < c.opts.MinTokenSize {
				continue
			}
			score += float64(count) * c.tokenProbability(token, category)
		}
		matches = append(matches, Match{Category: category, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}

	if c.opts.Verbose {
		log.Printf("[DEBUG] categorized text against %d categories, returned %d matches", len(c.categories), len(matches))
	}
	return matches
}

// Stats is a read-only summary of the learned model state.
type Stats struct {
	Categories     []string       `json:"categories"`
	TotalDocuments int            `json:"totalDocuments"`
	VocabularySize int            `json:"vocabularySize"`
	DocCount       map[string]int `json:"docCount"`
	WordCount      map[string]int `json:"wordCount"`
}

// Stats returns a copy of the model's summary counters.
func (c *Classifier) Stats() Stats {
	res := Stats{
		Categories:     append([]string{}, c.categories...),
		TotalDocuments: c.totalDocuments,
		VocabularySize: c.vocabularySize,
		DocCount:       make(map[string]int, len(c.docCount)),
		WordCount:      make(map[string]int, len(c.wordCount)),
	}
	for k, v := range c.docCount {
		res.DocCount[k] = v
	}
	for k, v := range c.wordCount {
		res.WordCount[k] = v
	}
	return res
}

// Options returns the configuration snapshot the classifier was created with.
func (c *Classifier) Options() Options { return c.opts }

// tokenProbability is the Laplace-smoothed probability of the token in the category:
// (observed+1) / (wordCount[category]+vocabularySize). Strictly positive for any token,
// seen or not, as long as the vocabulary is not empty.
func (c *Classifier) tokenProbability(token, category string) float64 {
	return float64(c.wordFreq[category][token]+1) / float64(c.wordCount[category]+c.vocabularySize)
}

// registerCategory zero-initializes counters for a category on first encounter.
// Idempotent, also used to repair nil inner maps after a restore.
func (c *Classifier) registerCategory(category string) {
	if _, ok := c.docCount[category]; !ok {
		c.categories = append(c.categories, category)
		c.docCount[category] = 0
		c.wordCount[category] = 0
	}
	if c.wordFreq[category] == nil {
		c.wordFreq[category] = make(map[string]int)
	}
}

// validToken reports whether a token passes the training validity filter: minimal
// length and not in the ignored set.
func (c *Classifier) validToken(token string) bool {
	if c.opts.MinTokenSize > 0 && utf8.RuneCountInString(token) < c.opts.MinTokenSize {
		return false
	}
	if _, ok := c.ignored[token]; ok {
		return false
	}
	return true
}

// frequencies builds a per-document frequency table from an ordered token sequence.
// Pure function, fresh map per call; empty and whitespace-only tokens are dropped.
func frequencies(tokens []string) map[string]int {
	res := make(map[string]int, len(tokens))
	for _, token := range tokens {
		if strings.TrimSpace(token) == "" {
			continue
		}
		res[token]++
	}
	return res
}

// normalize applies the canonical case form used identically in training and scoring.
func normalize(text string) string { return strings.ToUpper(text) }

func (o Options) validate() error {
	if o.MinTokenSize < 0 {
		return &ConfigError{Field: "minTokenSize", Reason: "must not be negative"}
	}
	if o.IgnorePattern != "" {
		if _, err := regexp.Compile(o.IgnorePattern); err != nil {
			return &ConfigError{Field: "ignorePattern", Reason: err.Error()}
		}
	}
	return nil
}

// ConfigError reports a malformed option at construction time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid classifier option " + e.Field + ": " + e.Reason
}
