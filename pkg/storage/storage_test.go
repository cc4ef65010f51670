package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratus/pkg/compression"
	"github.com/ajitpratap0/stratus/pkg/errors"
)

func TestParseURI(t *testing.T) {
	loc, err := ParseURI("s3://bucket/data/train.csv")
	require.NoError(t, err)
	assert.Equal(t, Location{Scheme: "s3", Bucket: "bucket", Key: "data/train.csv"}, loc)

	loc, err = ParseURI("gs://b/k.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "gs", loc.Scheme)

	loc, err = ParseURI("file:///tmp/x.csv")
	require.NoError(t, err)
	assert.Equal(t, Location{Scheme: "file", Key: "/tmp/x.csv"}, loc)

	loc, err = ParseURI("relative/x.csv")
	require.NoError(t, err)
	assert.Equal(t, "relative/x.csv", loc.Key)

	_, err = ParseURI("s3://bucket-only")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = ParseURI("ftp://host/file")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = ParseURI("")
	assert.Error(t, err)
}

func TestOpenLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	for _, uri := range []string{path, "file://" + path} {
		r, err := Open(context.Background(), uri, Options{})
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		require.NoError(t, r.Close())
		assert.Equal(t, "hello", string(data))
	}

	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
}

func TestReadAllDecompresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.txt.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := compression.NewWriter(f, compression.Zstd, compression.Default)
	require.NoError(t, err)
	_, err = w.Write([]byte("compressed rows"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	data, err := ReadAll(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "compressed rows", string(data))
}
