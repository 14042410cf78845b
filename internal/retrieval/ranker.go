// Package ranker scores chunks against a query and returns the top-k by
// relevance. Two interchangeable strategies exist: cosine similarity over
// precomputed embeddings (preferred), and a lexical token-frequency cosine
// used when no embedding is available so the system degrades to some
// ranking rather than failing outright.
//
// Both strategies are deterministic for fixed inputs: ties are broken by
// ascending source path, then ascending chunk index, and scores from the two
// strategies are never mixed within a single call.
package retrieval

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Strategy identifies which scoring strategy produced a ranking. It is part
// of the query-result cache key so cached embedding and lexical results
// never collide.
type Strategy string

const (
	// StrategyEmbedding scores by cosine similarity of dense vectors.
	StrategyEmbedding Strategy = "embedding"
	// StrategyLexical scores by cosine similarity of token-frequency vectors.
	StrategyLexical Strategy = "lexical"
)

// wordPattern matches lowercase Unicode word tokens, keeping internal
// apostrophes so contractions stay single tokens.
var wordPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Embedding ranks the set's chunks by cosine similarity between queryVec
// and each precomputed chunk embedding, returning the top-k by descending
// score with ties broken by ascending chunk index.
//
// The set must satisfy HasEmbeddings; callers select the strategy before
// calling, never inside.
func Embedding(queryVec []float32, set *ChunkSet, k int) []RankedResult {
	if set == nil || len(set.Chunks) == 0 || !set.HasEmbeddings() {
		return nil
	}

	results := make([]RankedResult, len(set.Chunks))
	for i, chunk := range set.Chunks {
		results[i] = RankedResult{
			Chunk: chunk,
			Score: cosine32(queryVec, set.Embeddings[i]),
		}
	}

	return topK(results, k)
}

// Lexical ranks the set's chunks by cosine similarity of lowercase
// token-frequency vectors between the query and each chunk text. Same
// top-k and tie-break rules as Embedding.
func Lexical(query string, set *ChunkSet, k int) []RankedResult {
	if set == nil || len(set.Chunks) == 0 {
		return nil
	}

	queryFreq := termFrequencies(query)

	results := make([]RankedResult, len(set.Chunks))
	for i, chunk := range set.Chunks {
		results[i] = RankedResult{
			Chunk: chunk,
			Score: frequencyCosine(queryFreq, termFrequencies(chunk.Text)),
		}
	}

	return topK(results, k)
}

// topK sorts results by descending score with ties broken by ascending
// source path, then ascending chunk index, and truncates to k. Chunk indices
// restart per document, so the path is part of the tie-break to keep the
// order a total one across a multi-document scope.
func topK(results []RankedResult, k int) []RankedResult {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.SourcePath != b.Chunk.SourcePath {
			return a.Chunk.SourcePath < b.Chunk.SourcePath
		}
		return a.Chunk.Index < b.Chunk.Index
	})

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results
}

// termFrequencies tokenizes text into lowercase word tokens and counts
// occurrences of each.
func termFrequencies(text string) map[string]int {
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	freq := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		freq[tok]++
	}
	return freq
}

// frequencyCosine computes the cosine similarity of two term-frequency
// vectors. Either side being empty yields 0.
func frequencyCosine(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var dot float64
	for term, ca := range a {
		if cb, ok := b[term]; ok {
			dot += float64(ca) * float64(cb)
		}
	}
	if dot == 0 {
		return 0
	}

	return dot / (frequencyNorm(a) * frequencyNorm(b))
}

// frequencyNorm is the Euclidean norm of a term-frequency vector.
func frequencyNorm(v map[string]int) float64 {
	var sum float64
	for _, c := range v {
		sum += float64(c) * float64(c)
	}
	return math.Sqrt(sum)
}

// cosine32 computes the cosine similarity of two float32 vectors. Length
// mismatches and zero vectors yield 0 rather than NaN.
func cosine32(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
