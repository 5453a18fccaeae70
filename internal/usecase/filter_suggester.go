package usecase

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

var punctuationRegex = regexp.MustCompile(`[^\w\s]`)

// Suggestion thresholds
const (
	// DefaultMinCategoryScore is the minimum token overlap (percent) for a category suggestion
	DefaultMinCategoryScore = 50.0

	// DefaultFuzzyEditDistance tolerates small typos such as "sneakrs"
	DefaultFuzzyEditDistance = 2
)

// KnownColors are the color tokens offered by the filter panel
var KnownColors = []string{
	"black", "white", "gray", "red", "orange", "yellow", "green",
	"blue", "purple", "pink", "brown", "beige",
}

// stopWords are dropped before matching
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "with": true, "by": true, "from": true, "is": true,
	"it": true, "as": true, "my": true, "some": true, "like": true,
}

// SuggesterConfig holds configuration for the filter suggester
type SuggesterConfig struct {
	MinCategoryScore  float64
	FuzzyEditDistance int
	Logger            *zap.Logger
}

// FilterSuggestion is the set of filter values a text query points at
type FilterSuggestion struct {
	Category string   `json:"category,omitempty"`
	Score    float64  `json:"score"`
	Tags     []string `json:"tags"`
	Colors   []string `json:"colors"`
}

// FilterSuggester maps free text onto known categories, tags and colors
// using token overlap with fuzzy matching for typos.
type FilterSuggester struct {
	minCategoryScore  float64
	fuzzyEditDistance int
	logger            *zap.Logger
}

// NewFilterSuggester creates a suggester with the given configuration
func NewFilterSuggester(config SuggesterConfig) *FilterSuggester {
	minScore := config.MinCategoryScore
	if minScore <= 0 {
		minScore = DefaultMinCategoryScore
	}
	distance := config.FuzzyEditDistance
	if distance <= 0 {
		distance = DefaultFuzzyEditDistance
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterSuggester{
		minCategoryScore:  minScore,
		fuzzyEditDistance: distance,
		logger:            logger,
	}
}

// Suggest returns the best category (if any clears the threshold), every matching
// tag and every mentioned color. Tags and colors keep the order of the candidate lists.
func (s *FilterSuggester) Suggest(query string, categories, tags []string) FilterSuggestion {
	suggestion := FilterSuggestion{Tags: []string{}, Colors: []string{}}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return suggestion
	}

	for _, category := range categories {
		score := s.overlapScore(queryTokens, tokenize(category))
		if score > suggestion.Score {
			suggestion.Category = category
			suggestion.Score = score
		}
	}
	if suggestion.Score < s.minCategoryScore {
		suggestion.Category = ""
	}

	for _, tag := range tags {
		if s.overlapScore(queryTokens, tokenize(tag)) >= 100 {
			suggestion.Tags = append(suggestion.Tags, tag)
		}
	}

	for _, color := range KnownColors {
		if containsToken(queryTokens, color) {
			suggestion.Colors = append(suggestion.Colors, color)
		}
	}

	s.logger.Debug("filter suggestion",
		zap.String("query", query),
		zap.String("category", suggestion.Category),
		zap.Float64("score", suggestion.Score),
		zap.Strings("tags", suggestion.Tags),
	)
	return suggestion
}

// overlapScore is the percentage of candidate tokens found in the query,
// counting fuzzy matches for longer tokens.
func (s *FilterSuggester) overlapScore(queryTokens, candidateTokens []string) float64 {
	if len(candidateTokens) == 0 {
		return 0
	}
	matched := 0
	for _, ct := range candidateTokens {
		for _, qt := range queryTokens {
			if qt == ct || singular(qt) == singular(ct) || fuzzyTokenMatch(qt, ct, s.fuzzyEditDistance) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(candidateTokens)) * 100
}

// tokenize splits a string into normalized lowercase tokens.
// Removes punctuation, stop words and pure numeric tokens.
func tokenize(s string) []string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")
	cleaned = strings.ReplaceAll(cleaned, "_", " ")

	var tokens []string
	for _, word := range strings.Fields(cleaned) {
		if len(word) <= 1 || stopWords[word] || isNumeric(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

func singular(token string) string {
	if len(token) > 3 && strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss") {
		return token[:len(token)-1]
	}
	return token
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want || singular(t) == want {
			return true
		}
	}
	return false
}

// fuzzyTokenMatch checks if two tokens are similar within the edit distance threshold
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	// Only apply fuzzy matching to tokens > 4 chars to avoid false positives
	if len(token1) < 5 || len(token2) < 5 {
		return false
	}

	lenDiff := len(token1) - len(token2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}

	return levenshteinDistance(token1, token2) <= threshold
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// Two rows instead of the full matrix
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}
