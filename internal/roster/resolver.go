package roster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stressvision/stressvision/pkg/models"
	"gonum.org/v1/gonum/floats"
)

// Sentinel errors for enrollment and resolution.
var (
	// ErrDimensionMismatch means the query embedding's dimensionality is
	// incompatible with the stored samples. Fatal to the single resolution
	// call, never to the session.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	ErrTooFewSamples = errors.New("too few enrollment samples")
	ErrLowQuality    = errors.New("enrollment quality below threshold")
)

// Resolver resolves face embeddings to enrolled employees by cosine
// similarity against every stored sample. Resolution is a pure function
// of the query embedding and the current enrollment snapshot.
type Resolver struct {
	threshold float64

	mu       sync.RWMutex
	enrolled []Enrollment
}

// NewResolver creates a resolver with the given similarity threshold.
func NewResolver(threshold float64) *Resolver {
	return &Resolver{threshold: threshold}
}

// SetEnrollments replaces the enrollment snapshot. Entries must be sorted
// by employee ID (ListEnrollments guarantees this), which makes the final
// lexicographic tie-break fall out of iteration order.
func (r *Resolver) SetEnrollments(enrolled []Enrollment) {
	r.mu.Lock()
	r.enrolled = enrolled
	r.mu.Unlock()
}

// EnrolledCount returns the number of employees in the snapshot.
func (r *Resolver) EnrolledCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.enrolled)
}

// Resolve matches the query embedding against every sample of every
// enrolled employee. An employee's score is the maximum similarity across
// their samples; the globally best-scoring employee wins if the score
// clears the threshold, otherwise the result is unknown. Ties prefer the
// employee with more samples, then the lexicographically smaller ID.
func (r *Resolver) Resolve(query []float64) (models.Match, error) {
	if len(query) == 0 {
		return models.Match{}, fmt.Errorf("%w: empty query embedding", ErrDimensionMismatch)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		bestID      string
		bestScore   float64
		bestSamples int
	)
	for _, enr := range r.enrolled {
		score := 0.0
		for _, sample := range enr.Samples {
			if len(sample) != len(query) {
				return models.Match{}, fmt.Errorf("%w: query dim %d, enrolled sample dim %d (employee %s)",
					ErrDimensionMismatch, len(query), len(sample), enr.EmployeeID)
			}
			if sim := cosineSimilarity(query, sample); sim > score {
				score = sim
			}
		}

		switch {
		case score > bestScore:
		case score == bestScore && bestID != "" && len(enr.Samples) > bestSamples:
			// Equal score: more samples means more evidence.
		default:
			continue
		}
		bestID = enr.EmployeeID
		bestScore = score
		bestSamples = len(enr.Samples)
	}

	if bestID == "" || bestScore < r.threshold {
		return models.Match{Score: bestScore}, nil
	}
	return models.Match{EmployeeID: bestID, Score: bestScore}, nil
}

// cosineSimilarity returns the cosine of the angle between a and b.
// Zero vectors yield 0.
func cosineSimilarity(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// enrollmentQuality returns the mean pairwise cosine similarity between
// samples. All samples must share one dimensionality.
func enrollmentQuality(samples [][]float64) (float64, error) {
	if len(samples) < 2 {
		return 1.0, nil
	}
	dim := len(samples[0])
	for i, s := range samples {
		if len(s) != dim {
			return 0, fmt.Errorf("%w: sample %d has dim %d, want %d", ErrDimensionMismatch, i, len(s), dim)
		}
	}

	var sum float64
	var pairs int
	for i := 0; i < len(samples); i++ {
		for j := i + 1; j < len(samples); j++ {
			sum += cosineSimilarity(samples[i], samples[j])
			pairs++
		}
	}
	return sum / float64(pairs), nil
}
