package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput points the package logger at a buffer until the test ends.
// Color is disabled so assertions can match plain text.
func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()

	buf := new(bytes.Buffer)

	mu.Lock()
	prevOutput, prevColor := output, useColor
	output, useColor = buf, false
	mu.Unlock()
	reconfigure()

	t.Cleanup(func() {
		mu.Lock()
		output, useColor = prevOutput, prevColor
		mu.Unlock()
		reconfigure()
	})

	return buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		visible []string
		hidden  []string
	}{
		{
			name:    "DebugShowsEverything",
			level:   "DEBUG",
			visible: []string{"debug message", "info message", "warn message", "error message"},
		},
		{
			name:    "InfoHidesDebug",
			level:   "INFO",
			visible: []string{"info message"},
			hidden:  []string{"debug message"},
		},
		{
			name:    "ErrorHidesTheRest",
			level:   "ERROR",
			visible: []string{"error message"},
			hidden:  []string{"debug message", "info message", "warn message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureOutput(t)
			SetLevel(tt.level)

			Debug("debug message")
			Info("info message")
			Warn("warn message")
			Error("error message")

			for _, want := range tt.visible {
				assert.Contains(t, buf.String(), want)
			}
			for _, unwanted := range tt.hidden {
				assert.NotContains(t, buf.String(), unwanted)
			}
		})
	}
}

func TestSetLevelIgnoresUnknownNames(t *testing.T) {
	buf := captureOutput(t)

	SetLevel("INFO")
	SetLevel("BOGUS")

	Info("still at info")
	assert.Contains(t, buf.String(), "still at info")
}

func TestTextFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("text")

	Info("replica started", KeyReplicaID, 1, KeyPort, 7001)

	line := buf.String()
	assert.Contains(t, line, "[INFO]")
	assert.Contains(t, line, "replica started")
	assert.Contains(t, line, "replica_id=1")
	assert.Contains(t, line, "port=7001")
}

func TestJSONFormat(t *testing.T) {
	buf := captureOutput(t)
	SetLevel("INFO")
	SetFormat("json")
	defer SetFormat("text")

	Info("election complete", KeyPrimaryID, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "election complete", entry["msg"])
	assert.Equal(t, float64(2), entry[KeyPrimaryID])
}

func TestContextFields(t *testing.T) {
	t.Run("InjectsLogContextFields", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")
		SetFormat("text")

		lc := NewLogContext("127.0.0.1").WithOp("LOGIN").WithUsername("alice")
		InfoCtx(WithContext(context.Background(), lc), "request handled")

		line := buf.String()
		assert.Contains(t, line, "op=LOGIN")
		assert.Contains(t, line, "client_ip=127.0.0.1")
		assert.Contains(t, line, "username=alice")
	})

	t.Run("NilLogContextIsHarmless", func(t *testing.T) {
		buf := captureOutput(t)
		SetLevel("INFO")

		InfoCtx(context.Background(), "no context fields")
		assert.Contains(t, buf.String(), "no context fields")
	})
}

func TestFieldConstructors(t *testing.T) {
	t.Run("ErrIsNilSafe", func(t *testing.T) {
		attr := Err(nil)
		assert.True(t, attr.Equal(Err(nil)))
	})

	t.Run("TypedConstructorsUseStandardKeys", func(t *testing.T) {
		assert.Equal(t, KeyOp, Op("SEND_MSG").Key)
		assert.Equal(t, KeyReplicaID, ReplicaID(3).Key)
		assert.Equal(t, KeyPrimaryID, PrimaryID(1).Key)
		assert.Equal(t, KeyUsername, Username("bob").Key)
		assert.Equal(t, KeyMsgID, MsgID(42).Key)
	})
}
