package shared

import "errors"

// ErrTenantRequired occurs when a request carries no tenant identity.
var ErrTenantRequired = errors.New("tenant required")
