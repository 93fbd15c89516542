package reconcile

import (
	"github.com/BearBump/ReshipDesk/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrOrderNotFound       = errors.New("order not found")
	ErrPrimaryUpdateFailed = errors.New("order found but primary update failed")
	ErrNoRetryWeight       = errors.New("no weight recorded for retry")
)

// MatchError: ошибка обработки одного совпадения; всегда уходит в очередь ошибок.
type MatchError struct {
	Kind models.FailureKind
	Err  error
}

func (e *MatchError) Error() string { return e.Err.Error() }
func (e *MatchError) Unwrap() error { return e.Err }

func notFound() error {
	return &MatchError{Kind: models.FailureNotFound, Err: ErrOrderNotFound}
}

func updateFailed(err error) error {
	return &MatchError{Kind: models.FailureUpdateFailed, Err: err}
}

func storageError(err error, op string) error {
	return &MatchError{Kind: models.FailureStorageError, Err: errors.Wrap(err, op)}
}

// KindOf returns the failure kind for err; unclassified errors count as storage errors.
func KindOf(err error) models.FailureKind {
	var me *MatchError
	if errors.As(err, &me) {
		return me.Kind
	}
	return models.FailureStorageError
}
