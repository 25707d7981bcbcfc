package services

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/google/uuid"
)

// storeErr reports a failed metadata or object store call as retryable.
func storeErr(op string, err error) error {
	if errors.Is(err, common.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", common.ErrStoreUnavailable, op, err)
}

// validID reports whether id can name a file at all. Anything else is
// answered with NotFound, the same as a file owned by someone else.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
