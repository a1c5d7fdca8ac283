package embeddings

import (
	"fmt"
	"math"
	"sort"
)

// distance computes the distance between a and b under the metric. Smaller
// is closer for every metric.
func distance(metric DistanceMetric, a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}
	switch metric {
	case DistanceCosine:
		var dot, na, nb float64
		for i := range a {
			dot += a[i] * b[i]
			na += a[i] * a[i]
			nb += b[i] * b[i]
		}
		if na == 0 || nb == 0 {
			return 1, nil
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), nil
	case DistanceIP:
		var dot float64
		for i := range a {
			dot += a[i] * b[i]
		}
		return 1 - dot, nil
	default:
		var sum float64
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return sum, nil
	}
}

// nearest scores every candidate against query and keeps the k closest.
// Candidates with a mismatching dimension are skipped.
func nearest(metric DistanceMetric, query []float64, candidates []*Document, k int) []*Document {
	if k <= 0 {
		return nil
	}
	scored := make([]*Document, 0, len(candidates))
	for _, c := range candidates {
		d, err := distance(metric, query, c.Embedding)
		if err != nil {
			continue
		}
		doc := *c
		doc.Distance = d
		scored = append(scored, &doc)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Distance < scored[j].Distance
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
