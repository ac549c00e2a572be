package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	t.Run("ExactMatch", func(t *testing.T) {
		assert.Equal(t, VerdictPassed, Compare("hi\n", "hi\n"))
	})

	t.Run("ReflexiveUnderNormalization", func(t *testing.T) {
		samples := []string{"", "hi", "hi\n", "a\r\nb", "  spaced  ", "multi\nline\noutput"}
		for _, s := range samples {
			assert.Equal(t, VerdictPassed, Compare(s, s), "compare(%q, %q)", s, s)
			assert.Equal(t, VerdictPassed, Compare(s+"\r\n", s), "compare(%q+CRLF, %q)", s, s)
		}
	})

	t.Run("TrimsOuterWhitespace", func(t *testing.T) {
		assert.Equal(t, VerdictPassed, Compare("  hi  \n", "hi"))
		assert.Equal(t, VerdictPassed, Compare("hi", "\thi\t"))
	})

	t.Run("NormalizesCRLF", func(t *testing.T) {
		assert.Equal(t, VerdictPassed, Compare("a\r\nb\r\nc", "a\nb\nc"))
	})

	t.Run("InnerWhitespacePreserved", func(t *testing.T) {
		assert.Equal(t, VerdictFailed, Compare("a b", "a  b"))
	})

	t.Run("Mismatch", func(t *testing.T) {
		assert.Equal(t, VerdictFailed, Compare("hi", "bye"))
	})
}

func TestStatus(t *testing.T) {
	t.Run("Terminal", func(t *testing.T) {
		assert.True(t, StatusCompleted.Terminal())
		assert.True(t, StatusError.Terminal())
		assert.False(t, StatusQueued.Terminal())
		assert.False(t, StatusRunning.Terminal())
	})

	t.Run("IsValid", func(t *testing.T) {
		for _, s := range []Status{StatusQueued, StatusRunning, StatusCompleted, StatusError} {
			assert.True(t, s.IsValid())
		}
		assert.False(t, Status("leased").IsValid())
		assert.False(t, Status("").IsValid())
	})
}
