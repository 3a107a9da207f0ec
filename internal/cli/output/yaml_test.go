package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintYAML(t *testing.T) {
	var buf bytes.Buffer
	err := PrintYAML(&buf, map[string]any{
		"servers": []map[string]any{{"host": "127.0.0.1", "port": 7001, "id": 1}},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "servers:")
	assert.Contains(t, out, "host: 127.0.0.1")
	assert.Contains(t, out, "port: 7001")
}
