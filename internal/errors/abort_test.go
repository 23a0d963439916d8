package errors

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoggerAbort(t *testing.T) {
	var code int
	orig := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = orig })

	var buf bytes.Buffer
	abort := LoggerAbort(zerolog.New(&buf))

	abort(0, "EnumProcessModules() failed")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), `"level":"fatal"`)
	assert.Contains(t, buf.String(), `"flags":0`)
	assert.Contains(t, buf.String(), "EnumProcessModules() failed")
}

func TestPanicAbort(t *testing.T) {
	assert.PanicsWithValue(t, Aborted{Flags: 3, Message: "bad image"}, func() {
		PanicAbort(3, "bad image")
	})
	assert.Equal(t, "bad image", Aborted{Message: "bad image"}.Error())
}
