package tokenizer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeSplitsLowercasesAndStems(t *testing.T) {
	got := Tokenize("Running VACCINES, vaccine-trials!")
	assert.Equal(t, []string{"run", "vaccin", "vaccin", "trial"}, got)
}

func TestTokenizeUsesPorter2Stems(t *testing.T) {
	assert.Equal(t, []string{"generous"}, Tokenize("generously"))
}

func TestTokenizeDropsStopWords(t *testing.T) {
	assert.Empty(t, Tokenize("the and of"))
	assert.Empty(t, Tokenize(""))
	assert.Empty(t, Tokenize("  ...  ;; "))

	for _, term := range Tokenize("This is what they said about the virus in all of the studies") {
		assert.False(t, IsStopWord(term), "stop-word %q leaked into output", term)
	}
}

func TestTokenizeKeepsDigitsAndDuplicates(t *testing.T) {
	got := Tokenize("covid 19 covid")
	assert.Equal(t, []string{"covid", "19", "covid"}, got)
}

func TestTokenizeTreatsNonASCIIAsSeparator(t *testing.T) {
	// "é" is not in [a-z0-9], so "café" yields "caf".
	assert.Equal(t, []string{"caf", "latt"}, Tokenize("café latte"))
}

func TestTokenizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"The vaccine reduced transmission of the virus in 2020",
		"Running vaccines trials",
	}
	for _, in := range inputs {
		first := Tokenize(in)
		second := Tokenize(strings.Join(first, " "))
		assert.Equal(t, first, second, "input %q", in)
	}
}

func TestTokenizeIsDeterministic(t *testing.T) {
	text := "Coronavirus infections spread through respiratory droplets"
	assert.Equal(t, Tokenize(text), Tokenize(text))
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("2020"))
	assert.False(t, IsNumeric("covid19"))
	assert.False(t, IsNumeric(""))
}

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Severe acute respiratory syndrome coronavirus 2 is the strain of
        coronavirus that causes COVID-19. Vaccines reduce transmission and
        hospitalisation across age groups, and antiviral treatments shorten
        the duration of symptoms in clinical trials.`,
	"long": strings.Repeat(`Information retrieval systems combine tokenization, stemming,
        and stop word removal to normalize text into searchable terms. BM25 ranking
        considers term frequency, document length normalization, and inverse document
        frequency to produce relevance scores. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = Tokenize(text)
		}
	})
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	sizes := []int{10, 100, 500, 1000, 5000}
	baseWord := "coronavirus vaccine efficacy transmission study "
	for _, size := range sizes {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Tokenize(text)
			}
		})
	}
}
