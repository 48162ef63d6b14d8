package logger

import "testing"

func TestNewBuildsLoggerWithoutError(t *testing.T) {
	l, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Infof("hello %s", "world")
	l.With("height", 1).Debugf("ignored at info level")
	l.Sync()
}

func TestNopDiscardsLogs(t *testing.T) {
	l := Nop()
	l.Errorf("should not panic")
}
