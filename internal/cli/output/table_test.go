package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	t.Run("RowsKeepOrder", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, PrintTable(&buf, nameList{"alice", "bob", "alfred"}))

		out := buf.String()
		require.Contains(t, out, "alice")
		assert.Less(t, strings.Index(out, "alice"), strings.Index(out, "bob"))
		assert.Less(t, strings.Index(out, "bob"), strings.Index(out, "alfred"))
	})

	t.Run("EmptyListPrintsHeaderOnly", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, PrintTable(&buf, nameList{}))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], "USERNAME")
	})
}
