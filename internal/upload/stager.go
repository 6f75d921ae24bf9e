package upload

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/lithammer/shortuuid/v4"
)

// ErrInsufficientSpace is returned when the staging area lacks free space for a new upload.
var ErrInsufficientSpace = errors.New("upload: insufficient free space")

// Stager keeps uploaded reports between the API and the worker.
// A ref is opaque to callers; it travels in the queue message.
type Stager interface {
	Save(ctx context.Context, name string, r io.Reader) (ref string, err error)
	// Open makes ref available as a local file. release must be called when done.
	Open(ctx context.Context, ref string) (path string, release func(), err error)
	Remove(ctx context.Context, ref string) error
}

// stagedName is the file or object name of a new upload; name is ignored
// so client paths never reach the filesystem.
func stagedName() string {
	return fmt.Sprintf("blood_test_report_%s.pdf", shortuuid.New())
}
