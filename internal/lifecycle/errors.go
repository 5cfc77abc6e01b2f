package lifecycle

import (
	"github.com/parkapp/parkwatch/internal/errors"
)

var (
	// ErrTransferActive is returned by Begin while a session is uploading or processing.
	ErrTransferActive = errors.NewStd("a transfer is already in progress")

	// ErrClosed is returned by Begin after Close.
	ErrClosed = errors.NewStd("lifecycle controller is closed")
)

func stateError(err error, phase Phase) error {
	return errors.New(err).
		Component("lifecycle").
		Category(errors.CategoryState).
		Context("phase", phase.String()).
		Build()
}
