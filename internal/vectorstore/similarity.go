// Package vectorstore holds scoring and ranking helpers shared by the
// brute-force store implementations.
package vectorstore

import (
	"fmt"
	"math"
	"sort"

	"pdfrag/internal/domain"
)

// ParseMetric validates a metric name. Empty selects cosine.
func ParseMetric(s string) (domain.Metric, error) {
	switch domain.Metric(s) {
	case "", domain.MetricCosine:
		return domain.MetricCosine, nil
	case domain.MetricDotProduct, domain.MetricEuclidean:
		return domain.Metric(s), nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// Score returns the similarity of a and b under metric; higher is closer.
// Euclidean distance is negated so every metric ranks descending.
func Score(metric domain.Metric, a, b []float32) float64 {
	switch metric {
	case domain.MetricDotProduct:
		return dot(a, b)
	case domain.MetricEuclidean:
		return -euclidean(a, b)
	default:
		return cosine(a, b)
	}
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosine(a, b []float32) float64 {
	var ab, aa, bb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		ab += float64(a[i]) * float64(b[i])
		aa += float64(a[i]) * float64(a[i])
		bb += float64(b[i]) * float64(b[i])
	}
	if aa == 0 || bb == 0 {
		return 0
	}
	return ab / (math.Sqrt(aa) * math.Sqrt(bb))
}

func euclidean(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// TopK sorts matches by descending score and keeps the first k. Ties keep
// insertion order so results are stable across runs.
func TopK(matches []domain.Match, k int) []domain.Match {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k >= 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// CopyMetadata returns a shallow copy so callers cannot mutate stored maps.
func CopyMetadata(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
