package backend

import (
	"io"
	"testing"

	"github.com/pkg/errors"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{name: "io", err: IOError(io.ErrUnexpectedEOF, "writing batch %d", 7), kind: ErrIO},
		{name: "corruption", err: CorruptionError(nil, "bad checksum at offset %d", 12), kind: ErrCorruption},
		{name: "lock", err: LockContentionError(io.ErrClosedPipe, "locking %s", "x"), kind: ErrLockContention},
	}

	kinds := []error{ErrIO, ErrCorruption, ErrLockContention, ErrClosed}
	for _, test := range tests {
		for _, kind := range kinds {
			got := errors.Is(test.err, kind)
			if got != (kind == test.kind) {
				t.Errorf("TestErrorKinds: %s: errors.Is(err, %q) = %t", test.name, kind, got)
			}
		}
	}

	if !errors.Is(tests[0].err, io.ErrUnexpectedEOF) {
		t.Errorf("TestErrorKinds: the cause of an IOError is not reachable through errors.Is")
	}
}
