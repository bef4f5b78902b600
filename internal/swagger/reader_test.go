package swagger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_Read(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "api.yaml"), []byte(`
openapi: "3.0.1"
paths:
  /hello:
    get: {}
`), 0o644))

	log, _ := test.NewNullLogger()
	r := &Reader{BaseDir: dir, Logger: log}

	t.Run("inline body", func(t *testing.T) {
		doc, err := r.Read(map[string]any{"swagger": "2.0"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "2.0", doc["swagger"])
	})

	t.Run("local definition uri", func(t *testing.T) {
		doc, err := r.Read(nil, "api.yaml")
		require.NoError(t, err)
		assert.Contains(t, doc, "paths")
	})

	t.Run("aws include", func(t *testing.T) {
		body := map[string]any{
			"Fn::Transform": map[string]any{
				"Name":       "AWS::Include",
				"Parameters": map[string]any{"Location": "api.yaml"},
			},
		}
		doc, err := r.Read(body, nil)
		require.NoError(t, err)
		assert.Equal(t, "3.0.1", doc["openapi"])
	})

	t.Run("s3 location skipped", func(t *testing.T) {
		doc, err := r.Read(nil, map[string]any{"Bucket": "b", "Key": "k"})
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := r.Read(nil, "missing.yaml")
		assert.Error(t, err)
	})
}
