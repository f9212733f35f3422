package stamp

import (
	"fmt"

	"github.com/punchcardhq/punchcard/internal/model"
)

// StaffDirectory answers merchant-membership questions. Implemented by
// store.StaffStore; every call reads fresh state because assignments can
// change between requests.
type StaffDirectory interface {
	BelongsToMerchant(staffID, merchantID int64) (bool, error)
}

// Authorizer is the access guard in front of the engine: a staff member may
// act on an account when they hold the super-admin capability or belong to
// the account's merchant.
type Authorizer struct {
	dir StaffDirectory
}

func NewAuthorizer(dir StaffDirectory) *Authorizer {
	return &Authorizer{dir: dir}
}

func (a *Authorizer) Authorize(staff model.Staff, merchantID int64) error {
	if staff.SuperAdmin {
		return nil
	}
	ok, err := a.dir.BelongsToMerchant(staff.ID, merchantID)
	if err != nil {
		return storageErr("membership check", err)
	}
	if !ok {
		return fmt.Errorf("staff %d, merchant %d: %w", staff.ID, merchantID, ErrForbidden)
	}
	return nil
}
