package logging

import (
	"bytes"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestNew(t *testing.T) {
	t.Run("writes fields at the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Level: "debug", NoColor: true, Output: &buf})
		test.That(t, err, test.ShouldBeNil)
		logger.WithField(SessionIDKey, "abc").Debug("state change")
		test.That(t, buf.String(), test.ShouldContainSubstring, "state change")
		test.That(t, buf.String(), test.ShouldContainSubstring, "abc")
	})

	t.Run("suppresses lower levels", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(Options{Level: "warn", NoColor: true, Output: &buf})
		test.That(t, err, test.ShouldBeNil)
		logger.Info("hidden")
		test.That(t, buf.Len(), test.ShouldEqual, 0)
	})

	t.Run("rejects unknown levels", func(t *testing.T) {
		_, err := New(Options{Level: "loud"})
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("mirrors to a file", func(t *testing.T) {
		var buf bytes.Buffer
		file := filepath.Join(t.TempDir(), "tryon.log")
		logger, err := New(Options{File: file, NoColor: true, Output: &buf})
		test.That(t, err, test.ShouldBeNil)
		logger.Info("to disk")
		test.That(t, buf.String(), test.ShouldContainSubstring, "to disk")
	})
}

func TestDiscard(t *testing.T) {
	test.That(t, OrDiscard(nil), test.ShouldNotBeNil)
	l := Discard()
	test.That(t, OrDiscard(l), test.ShouldEqual, l)
}
