package usecase

import (
	"math"
	"sort"
)

// tfSaturation dampens repeated terms the same way BM25 does.
const tfSaturation = 1.2

// termIndex is a TF-IDF index over a fixed set of texts. It is immutable once
// built; a corpus change builds a new one.
type termIndex struct {
	idf  map[string]float64
	docs []termVector
}

// termVector keeps terms sorted so that dot products always sum in the same
// order and scores are bit-for-bit reproducible.
type termVector struct {
	terms   []string
	weights []float64
	lookup  map[string]float64
	norm    float64
}

func buildTermIndex(texts []string) *termIndex {
	freqs := make([]map[string]float64, len(texts))
	df := make(map[string]int, 256)
	for i, text := range texts {
		tf := termFrequencies(tokenize(text))
		freqs[i] = tf
		for term := range tf {
			df[term]++
		}
	}

	n := float64(len(texts))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log((n+1)/(float64(count)+1)) + 1
	}

	ix := &termIndex{idf: idf, docs: make([]termVector, len(texts))}
	for i, tf := range freqs {
		ix.docs[i] = ix.weigh(tf, true)
	}
	return ix
}

// vectorize weighs query text against the corpus vocabulary. Terms the corpus
// has never seen carry no weight.
func (ix *termIndex) vectorize(text string) termVector {
	return ix.weigh(termFrequencies(tokenize(text)), false)
}

func (ix *termIndex) weigh(tf map[string]float64, withLookup bool) termVector {
	terms := make([]string, 0, len(tf))
	for term := range tf {
		if _, ok := ix.idf[term]; ok {
			terms = append(terms, term)
		}
	}
	sort.Strings(terms)

	v := termVector{terms: terms, weights: make([]float64, len(terms))}
	if withLookup {
		v.lookup = make(map[string]float64, len(terms))
	}
	var sq float64
	for i, term := range terms {
		f := tf[term]
		w := (f * (tfSaturation + 1)) / (f + tfSaturation) * ix.idf[term]
		v.weights[i] = w
		sq += w * w
		if withLookup {
			v.lookup[term] = w
		}
	}
	v.norm = math.Sqrt(sq)
	return v
}

// cosine scores query q against indexed document i.
func (ix *termIndex) cosine(q termVector, i int) float64 {
	if i < 0 || i >= len(ix.docs) {
		return 0
	}
	d := ix.docs[i]
	if q.norm == 0 || d.norm == 0 {
		return 0
	}
	var dot float64
	for k, term := range q.terms {
		if w, ok := d.lookup[term]; ok {
			dot += q.weights[k] * w
		}
	}
	return dot / (q.norm * d.norm)
}

func termFrequencies(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		tf[token]++
	}
	return tf
}

// cosineSimilarity compares two dense embeddings. Mismatched or empty vectors
// score 0 and ok=false.
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, true
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}
