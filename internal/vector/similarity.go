package vector

import "math"

// InnerProduct returns the dot product of a and b, or 0 when their lengths differ or are
// zero. Embeddings are stored at unit length, so this is their cosine similarity.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// Norm returns the Euclidean length of x.
func Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize scales x in place to unit length and returns the length it had.
// A zero vector is left as is.
func Normalize(x []float32) float64 {
	norm := Norm(x)
	if norm == 0 {
		return 0
	}
	for i := range x {
		x[i] = float32(float64(x[i]) / norm)
	}
	return norm
}

// Similarity is the ranking signal for a query against a stored embedding: their cosine
// similarity with negatives floored at zero. Mismatched dimensions score zero.
func Similarity(query, doc []float32) float64 {
	s := InnerProduct(query, doc)
	if s < 0 {
		return 0
	}
	return s
}
