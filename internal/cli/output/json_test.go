package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	err := PrintJSON(&buf, struct {
		Username string `json:"username"`
		LoggedIn bool   `json:"logged_in"`
	}{Username: "alice", LoggedIn: true})
	require.NoError(t, err)

	assert.JSONEq(t, `{"username":"alice","logged_in":true}`, buf.String())
	// Output is indented for humans.
	assert.Contains(t, buf.String(), "\n  ")
}
