// Package address models customer shipping addresses.
package address

import (
	"context"
	"regexp"
	"strings"

	"github.com/xenking/storefront-checkout/internal/domain/apperr"
)

// ErrNotFound is returned when an address id does not belong to the caller.
var ErrNotFound = apperr.NotFound("address_not_found", "address not found")

var postalCode = regexp.MustCompile(`^[0-9]{6}$`)

// Address is a shipping address. Orders embed a copy taken at settlement.
type Address struct {
	ID         string
	UserID     string
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Repository reads saved addresses.
type Repository interface {
	// GetByID returns the address only if it is owned by userID.
	GetByID(ctx context.Context, userID, id string) (*Address, error)
}

// Validate checks the fields required to ship an order.
func (a *Address) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"fullName", a.FullName},
		{"phone", a.Phone},
		{"line1", a.Line1},
		{"city", a.City},
		{"state", a.State},
		{"postalCode", a.PostalCode},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return apperr.Validation("address_invalid", "address "+f.name+" is required")
		}
	}
	if !postalCode.MatchString(a.PostalCode) {
		return apperr.Validation("address_invalid", "address postalCode must be 6 digits")
	}
	return nil
}

// Snapshot returns a detached copy for embedding in an order.
func (a Address) Snapshot() Address {
	if a.Country == "" {
		a.Country = "IN"
	}
	return a
}
