package server

import (
	"context"
	"errors"

	kerrors "github.com/go-kratos/kratos/v2/errors"

	"ytextract/extract"
	"ytextract/internal/storage"
)

// Error reasons returned in kratos error bodies.
const (
	ReasonInvalidInput  = extract.CodeInvalidInput
	ReasonBatchTooLarge = "batch_too_large"
	ReasonInvalidFile   = "invalid_file"
	ReasonTimeout       = "timeout"
	ReasonCanceled      = extract.CodeCanceled
)

// toHTTPError maps request-level failures onto kratos errors. Item-level
// provider failures never reach here: they travel inside the payload.
func toHTTPError(err error) error {
	if err == nil {
		return nil
	}
	var ke *kerrors.Error
	if errors.As(err, &ke) {
		return err
	}
	switch {
	case errors.Is(err, extract.ErrInvalidInput):
		return kerrors.BadRequest(ReasonInvalidInput, err.Error())
	case errors.Is(err, extract.ErrBatchTooLarge):
		return kerrors.BadRequest(ReasonBatchTooLarge, err.Error())
	case errors.Is(err, storage.ErrNoURLs):
		return kerrors.BadRequest(ReasonInvalidFile, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return kerrors.GatewayTimeout(ReasonTimeout, err.Error())
	case errors.Is(err, context.Canceled):
		return kerrors.ClientClosed(ReasonCanceled, err.Error())
	}
	return kerrors.InternalServer("internal", err.Error())
}
