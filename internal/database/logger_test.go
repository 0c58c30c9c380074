package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type captureWriter struct{ lines []string }

func (w *captureWriter) Printf(format string, args ...interface{}) {
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func TestLoggerSkipsRecordNotFound(t *testing.T) {
	w := &captureWriter{}
	l := newLogger(w)
	sql := func() (string, int64) { return "SELECT * FROM carts WHERE user_id = 1", 0 }

	l.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Empty(t, w.lines)

	l.Trace(context.Background(), time.Now(), sql, errors.New("disk I/O error"))
	require.Len(t, w.lines, 1)
	assert.Contains(t, w.lines[0], "disk I/O error")
}
