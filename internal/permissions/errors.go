package permissions

import (
	"errors"
	"fmt"

	"github.com/orderdesk/authz/internal/platform/httpx"
)

var (
	// ErrApprovalNotFound indicates an unknown approval id.
	ErrApprovalNotFound = fmt.Errorf("%w: approval request", httpx.ErrNotFound)
	// ErrSelfApproval is returned when a reviewer decides their own request.
	ErrSelfApproval = fmt.Errorf("%w: reviewer cannot decide their own request", httpx.ErrForbidden)
	// ErrReservedReviewer is returned when a caller claims the system reviewer id.
	ErrReservedReviewer = fmt.Errorf("%w: reviewer id is reserved", httpx.ErrForbidden)
	// ErrAlreadyDecided is returned when the request left the pending state.
	ErrAlreadyDecided = fmt.Errorf("%w: approval request already decided", httpx.ErrConflict)
	// ErrTargetApproval is returned when a reviewer decides an elevated change
	// that would grant rights to themselves.
	ErrTargetApproval = fmt.Errorf("%w: reviewer cannot approve elevated rights for themselves", httpx.ErrForbidden)
	// ErrDuplicateApproval reports an approval id collision on insert. It is a
	// server fault, not a client conflict.
	ErrDuplicateApproval = errors.New("permissions: duplicate approval id")
)
