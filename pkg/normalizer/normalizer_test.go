package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFiltersPrivateAndDedupes(t *testing.T) {
	input := []string{
		"http://example.com/",
		"192.168.1.1",
		"10.0.0.0/24",
		"8.8.8.8",
		"172.16.1.1-172.16.1.10",
		"8.8.8.8-8.8.8.10",
		"",
	}

	got := Normalize(input)

	assert.ElementsMatch(t, []string{"example.com", "8.8.8.8", "8.8.8.8-8.8.8.10"}, got)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	input := []string{"http://example.com/", "8.8.8.8", "192.168.1.1"}
	once := Normalize(input)
	twice := Normalize(once)
	assert.Equal(t, once, twice)
}

func TestNormalizeDeduplicatesPreservingFirstOccurrence(t *testing.T) {
	input := []string{"example.com", "example.com/", "http://example.com"}
	got := Normalize(input)
	assert.Equal(t, []string{"example.com"}, got)
}

func TestNormalizeKeepsUnparseableInputUnchanged(t *testing.T) {
	got := Normalize([]string{"not a host??"})
	assert.Equal(t, []string{"not a host??"}, got)
}

func TestNormalizeLoopbackAndLinkLocalRejected(t *testing.T) {
	got := Normalize([]string{"127.0.0.1", "169.254.1.1", "::1"})
	assert.Empty(t, got)
}
