package tableseg

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Linker defaults.
const (
	DefaultSemanticThreshold = 0.3
	DefaultLinkThreshold     = 0.4

	// keywordWeight discounts keyword-only matches against semantic ones.
	keywordWeight = 0.8
	// agreementBoost is added when both signals qualify independently.
	agreementBoost = 0.2
)

// SimilarityProvider computes semantic similarity between two texts in [0,1].
// Implemented by the embedding layer; absent providers disable the signal.
type SimilarityProvider interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// Linker scores validated tables against the concept taxonomy. It holds only
// read-only state and is safe to share across page workers.
type Linker struct {
	Concepts          []ConceptEntry
	Provider          SimilarityProvider // nil disables the semantic signal
	SemanticThreshold float64
	LinkThreshold     float64
	Logger            *slog.Logger
}

// NewLinker builds a linker with default thresholds.
func NewLinker(concepts []ConceptEntry, provider SimilarityProvider) *Linker {
	return &Linker{
		Concepts:          concepts,
		Provider:          provider,
		SemanticThreshold: DefaultSemanticThreshold,
		LinkThreshold:     DefaultLinkThreshold,
	}
}

// Link scores the table against every concept and fills Links and
// LinkedConceptIDs, sorted by confidence descending with ties broken by
// concept id. An empty taxonomy or no qualifying concept is a normal
// outcome and yields empty slices, never an error.
func (l *Linker) Link(ctx context.Context, table *LinkedTable) {
	table.Links = []Link{}
	table.LinkedConceptIDs = []string{}
	if l == nil || len(l.Concepts) == 0 {
		return
	}

	searchText := tableSearchText(table)
	searchLower := strings.ToLower(searchText)

	type scored struct {
		link Link
	}
	var results []scored

	for _, concept := range l.Concepts {
		semantic := l.semanticScore(ctx, searchText, concept)
		keyword, matched := keywordScore(searchLower, concept)

		combined, evidence := CombineSignals(semantic, keyword, l.SemanticThreshold, matched)
		if combined < l.linkThreshold() {
			continue
		}

		results = append(results, scored{link: Link{
			Type:       LinkTypeTableOf,
			TargetID:   concept.ID,
			Confidence: combined,
			Evidence:   evidence,
		}})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].link, results[j].link
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.TargetID < b.TargetID
	})

	for _, r := range results {
		table.Links = append(table.Links, r.link)
		table.LinkedConceptIDs = append(table.LinkedConceptIDs, r.link.TargetID)
	}
}

func (l *Linker) linkThreshold() float64 {
	if l.LinkThreshold > 0 {
		return l.LinkThreshold
	}
	return DefaultLinkThreshold
}

// semanticScore queries the similarity provider; provider errors disable
// the signal for this concept rather than failing the table.
func (l *Linker) semanticScore(ctx context.Context, searchText string, concept ConceptEntry) float64 {
	if l.Provider == nil || concept.Description == "" {
		return 0
	}
	score, err := l.Provider.Similarity(ctx, searchText, concept.Description)
	if err != nil {
		logger := l.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("similarity provider failed", "concept", concept.ID, "error", err)
		return 0
	}
	return clamp01(score)
}

// keywordScore returns the fraction of the concept's keywords (plus its
// name) found in the table text, and which keywords matched.
func keywordScore(searchLower string, concept ConceptEntry) (float64, []string) {
	terms := concept.Keywords
	if concept.Name != "" {
		terms = append(append([]string(nil), concept.Keywords...), concept.Name)
	}
	if len(terms) == 0 {
		return 0, nil
	}

	var matched []string
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(searchLower, strings.ToLower(term)) {
			matched = append(matched, term)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}

	denom := len(concept.Keywords)
	if denom == 0 {
		denom = 1
	}
	score := float64(len(matched)) / float64(denom)
	return clamp01(score), matched
}

// CombineSignals folds the semantic and keyword scores into one confidence.
//
// The combination is monotone in both inputs and bounded to [0,1]:
// a keyword-only match scores keywordWeight*kw; a semantic-only match
// scores sem (if it clears semanticFloor); when both signals qualify the
// semantic score is boosted by agreementBoost, capped at 1. Either signal
// alone can clear the final link threshold.
func CombineSignals(semantic, keyword, semanticFloor float64, matchedKeywords []string) (float64, string) {
	semQualified := semantic >= semanticFloor && semantic > 0
	kwQualified := keyword > 0

	var combined float64
	switch {
	case semQualified && kwQualified:
		combined = clamp01(semantic + agreementBoost)
	case semQualified:
		combined = semantic
	case kwQualified:
		combined = clamp01(keyword * keywordWeight)
	default:
		return 0, ""
	}
	// The reinforced score never drops below the stronger single signal.
	if semQualified && kwQualified {
		combined = clamp01(max(combined, keyword*keywordWeight))
	}

	var evidence string
	switch {
	case semQualified && kwQualified:
		evidence = fmt.Sprintf("semantic similarity %.2f + keywords: %s", semantic, strings.Join(matchedKeywords, ", "))
	case semQualified:
		evidence = fmt.Sprintf("semantic similarity %.2f", semantic)
	default:
		evidence = fmt.Sprintf("keyword match (%.2f): %s", keyword, strings.Join(matchedKeywords, ", "))
	}
	return combined, evidence
}

// tableSearchText builds the textual representation used for both signals:
// caption plus column headers.
func tableSearchText(table *LinkedTable) string {
	parts := make([]string, 0, 1+len(table.ColHeaders))
	if table.Caption != "" {
		parts = append(parts, table.Caption)
	}
	for _, h := range table.ColHeaders {
		if h != "" {
			parts = append(parts, h)
		}
	}
	return strings.Join(parts, " ")
}
