package knowledgebase

import (
	"math"
	"regexp"
	"strings"
)

// Tokens are runs of two or more word characters, lowercased.
var termPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

func terms(text string) []string {
	return termPattern.FindAllString(strings.ToLower(text), -1)
}

type sparseVec map[string]float64

// tfidf fits a vocabulary over docs and returns one L2-normalized vector per
// doc, using raw term counts and smoothed idf: ln((1+n)/(1+df)) + 1.
func tfidf(docs []string) []sparseVec {
	counts := make([]map[string]int, len(docs))
	df := make(map[string]int)
	for i, d := range docs {
		c := make(map[string]int)
		for _, t := range terms(d) {
			c[t]++
		}
		for t := range c {
			df[t]++
		}
		counts[i] = c
	}

	n := float64(len(docs))
	out := make([]sparseVec, len(docs))
	for i, c := range counts {
		v := make(sparseVec, len(c))
		var norm float64
		for t, tf := range c {
			w := float64(tf) * (math.Log((1+n)/(1+float64(df[t]))) + 1)
			v[t] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for t := range v {
				v[t] /= norm
			}
		}
		out[i] = v
	}
	return out
}

// cosine of two normalized vectors.
func cosine(a, b sparseVec) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for t, w := range a {
		dot += w * b[t]
	}
	return dot
}

// Similarities scores each candidate text against query.
func Similarities(query string, candidates []string) []float64 {
	vecs := tfidf(append([]string{query}, candidates...))
	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = cosine(vecs[0], vecs[i+1])
	}
	return scores
}
