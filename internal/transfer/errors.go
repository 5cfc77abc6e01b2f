package transfer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/parkapp/parkwatch/internal/errors"
)

// ErrMissingEndpoint is returned by Begin when no upload endpoint is given.
var ErrMissingEndpoint = errors.NewStd("transfer: upload endpoint is empty")

// TransferError is a transport failure or a non-200 upload response.
// StatusCode is zero when no response was received.
type TransferError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransferError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("upload failed with status %d: %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("upload failed with status %d", e.StatusCode)
	case e.Err != nil:
		return "upload failed: " + e.Err.Error()
	default:
		return "upload failed"
	}
}

func (e *TransferError) Unwrap() error { return e.Err }

// ErrorCategory implements errors.CategorizedError.
func (e *TransferError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryTransfer
}

func newStatusError(url string, status int, message string) error {
	return errors.New(&TransferError{StatusCode: status, Message: message}).
		Component("transfer").
		Category(errors.CategoryTransfer).
		Context("status_code", strconv.Itoa(status)).
		NetworkContext(url, 0).
		Build()
}

func newTransportError(url string, err error) error {
	category := errors.CategoryTransfer
	if errors.Is(err, context.Canceled) {
		category = errors.CategoryCancellation
	}
	return errors.New(&TransferError{Err: err}).
		Component("transfer").
		Category(category).
		NetworkContext(url, 0).
		Build()
}
