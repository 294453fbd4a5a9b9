package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelWarn)

	l.Debug("skipped member", "type", "Book")
	l.Info("registered", "type", "Book")
	l.Warn("mutation failed", "mutation", "createBook", "outcome", "validation_error")
	l.Error("odd", "dangling")

	assert.Equal(t,
		"warn mutation failed mutation=createBook outcome=validation_error\n"+
			"error odd dangling\n",
		buf.String())
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().Error("ignored", "k", "v")
	})
}
