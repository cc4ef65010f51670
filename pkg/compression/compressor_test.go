package compression

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectAlgorithm(t *testing.T) {
	tests := map[string]Algorithm{
		"train.jsonl.gz":        Gzip,
		"s3://bucket/a.csv.ZST": Zstd,
		"rows.arrow.lz4":        LZ4,
		"rows.avro.sz":          Snappy,
		"rows.s2":               S2,
		"rows.deflate":          Deflate,
		"rows.csv":              None,
		"noext":                 None,
	}
	for name, want := range tests {
		assert.Equal(t, want, DetectAlgorithm(name), name)
	}
	assert.Equal(t, "rows.csv", TrimExtension("rows.csv.gz"))
	assert.Equal(t, "rows.csv", TrimExtension("rows.csv"))
}

func TestStreamRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat(`{"id": 1, "label": "cat"}`+"\n", 200))

	for _, algo := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2, Deflate} {
		t.Run(string(algo), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, algo, Default)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			if algo != None {
				assert.Less(t, buf.Len(), len(payload))
			}

			r, err := NewReader(&buf, algo)
			require.NoError(t, err)
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, payload, got)
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, a)

	_, err = ParseAlgorithm("brotli")
	assert.Error(t, err)

	_, err = NewReader(strings.NewReader(""), Algorithm("brotli"))
	assert.Error(t, err)
}
