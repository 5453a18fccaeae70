package usecase

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// maxQueryLength bounds text queries sent to the search API
const maxQueryLength = 100

// QueryPreprocessor cleans free-text product queries before a text search
type QueryPreprocessor struct {
	logger *zap.Logger
}

// Compiled regex patterns for query preprocessing
var (
	// Matches garment and shoe sizes like "size 10", "us 9.5", "eu 42", "uk 8", "32x30"
	sizePattern = regexp.MustCompile(`\bsize\s*\d+(\.\d+)?\b|\b(us|eu|uk)\s*\d+(\.\d+)?\b|\b\d+\s*x\s*\d+\b|\b\d+(\.\d+)?\s*(cm|mm|in|inch|inches)\b`)

	// Matches pack/set patterns like "2 pack", "pack of 3", "set of 4", "3 pcs"
	packPattern = regexp.MustCompile(`\b\d+[-\s]*(pack|pk|pcs|pieces?)\b|\b(pack|set)\s*of\s*\d+\b|\b\d+[-\s]*pairs?\b`)

	// Matches price mentions like "$49.99", "under 50", "below $100"
	pricePattern = regexp.MustCompile(`\$\s*\d+(\.\d+)?|\b(under|below|over|above|less than)\s*\$?\s*\d+(\.\d+)?\b`)

	// Lone punctuation left behind after removals
	orphanPunctuationPattern = regexp.MustCompile(`\s+[,\-;:/|]+\s+|^[\s,\-;:/|]+|[\s,\-;:/|]+$`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// queryNoiseWords are shopping and marketing terms that do not describe how a product looks
var queryNoiseWords = map[string]bool{
	// Shopping terms
	"buy":      true,
	"cheap":    true,
	"sale":     true,
	"discount": true,
	"deal":     true,
	"deals":    true,
	"shipping": true,
	"free":     true,
	"price":    true,
	"online":   true,
	"shop":     true,
	"store":    true,

	// Marketing terms
	"new":       true,
	"best":      true,
	"top":       true,
	"authentic": true,
	"original":  true,
	"official":  true,
	"genuine":   true,
	"premium":   true,
	"quality":   true,
	"trendy":    true,
	"hot":       true,
	"popular":   true,
}

// NewQueryPreprocessor creates a new query preprocessor
func NewQueryPreprocessor(logger *zap.Logger) *QueryPreprocessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryPreprocessor{logger: logger}
}

// PreprocessQuery strips sizes, pack counts, prices and shopping noise from a query.
// When cleaning removes everything, the trimmed lowercase input is returned instead.
func (p *QueryPreprocessor) PreprocessQuery(query string) string {
	original := strings.TrimSpace(query)
	if original == "" {
		return ""
	}

	cleaned := strings.ToLower(original)
	cleaned = sizePattern.ReplaceAllString(cleaned, " ")
	cleaned = packPattern.ReplaceAllString(cleaned, " ")
	cleaned = pricePattern.ReplaceAllString(cleaned, " ")
	cleaned = removeNoiseWords(cleaned)
	cleaned = orphanPunctuationPattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(multiSpacePattern.ReplaceAllString(cleaned, " "))

	if cleaned == "" {
		cleaned = strings.ToLower(multiSpacePattern.ReplaceAllString(original, " "))
	}
	cleaned = truncateAtWord(cleaned, maxQueryLength)

	p.logger.Debug("query preprocessed", zap.String("input", original), zap.String("output", cleaned))
	return cleaned
}

func removeNoiseWords(s string) string {
	words := strings.Fields(s)
	kept := make([]string, 0, len(words))
	for _, word := range words {
		if !queryNoiseWords[strings.Trim(word, ",.!?;:-'\"")] {
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, " ")
}

// truncateAtWord cuts s to at most limit bytes, preferring a word boundary in the second half
func truncateAtWord(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	s = s[:limit]
	if lastSpace := strings.LastIndex(s, " "); lastSpace > limit/2 {
		s = s[:lastSpace]
	}
	return strings.TrimSpace(s)
}
