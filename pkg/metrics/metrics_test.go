package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSimilarityLookup(true)
		m.RecordLexiconLookup(false)
		m.RecordBarrelWrites("lexicon", 3)
		m.RecordFlush(nil)
	})
}

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSimilarityLookup(true)
	m.RecordSimilarityLookup(false)
	m.RecordSimilarityLookup(false)
	m.RecordBarrelWrites("inverted_index", 4)
	m.RecordFlush(errors.New("disk full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SimilarityCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SimilarityCacheTotal.WithLabelValues("miss")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BarrelRewritesTotal.WithLabelValues("inverted_index")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexFlushesTotal.WithLabelValues("error")))
}
