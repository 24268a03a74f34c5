package store

import (
	"errors"

	"github.com/example/mailroom-core/internal/domain"
)

// mapStoreErrToDomain translates a store-layer outcome (already passed
// through WriteQueue's retry loop) into the sentinel errors domain services
// and httpapi handlers match against.
func mapStoreErrToDomain(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrConstraintViolation), errors.Is(err, ErrForeignKeyViolation):
		return domain.ErrConflict
	case errors.Is(err, ErrBusy), errors.Is(err, ErrConflict):
		return domain.ErrBusy
	default:
		return err
	}
}
