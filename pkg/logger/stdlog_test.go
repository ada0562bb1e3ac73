package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdLogger(t *testing.T) {
	saved := globalLogger
	t.Cleanup(func() { globalLogger = saved })

	var buf bytes.Buffer
	globalLogger = zerolog.New(&buf).Level(zerolog.DebugLevel)

	StdLogger("ldap", zerolog.DebugLevel).Printf("packet %d", 7)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "ldap", line["component"])
	assert.Equal(t, "packet 7", line["message"])
}
