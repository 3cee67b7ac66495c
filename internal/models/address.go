package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrAddressOwnerAmbiguous = errors.New("address belongs to both a user and a restaurant")
	ErrAddressOwnerMissing   = errors.New("address has no owner")
)

// Owner identifies who an address belongs to. It is either a UserOwner or a
// RestaurantOwner, never both.
type Owner interface {
	ownerKind() string
	OwnerID() int64
}

// UserOwner marks an address owned by a user
type UserOwner struct {
	ID int64
}

func (o UserOwner) ownerKind() string { return "user" }
func (o UserOwner) OwnerID() int64    { return o.ID }

// RestaurantOwner marks an address owned by a restaurant
type RestaurantOwner struct {
	ID int64
}

func (o RestaurantOwner) ownerKind() string { return "restaurant" }
func (o RestaurantOwner) OwnerID() int64    { return o.ID }

// OwnerFromColumns builds an Owner from the nullable user_id and
// restaurant_id columns of the addresses table.
func OwnerFromColumns(userID, restaurantID *int64) (Owner, error) {
	switch {
	case userID != nil && restaurantID != nil:
		return nil, ErrAddressOwnerAmbiguous
	case userID != nil:
		return UserOwner{ID: *userID}, nil
	case restaurantID != nil:
		return RestaurantOwner{ID: *restaurantID}, nil
	default:
		return nil, ErrAddressOwnerMissing
	}
}

// Address is a postal address with exactly one owner
type Address struct {
	ID           int64            `json:"id"`
	Owner        Owner            `json:"-"`
	Street       string           `json:"street"`
	Number       string           `json:"number"`
	Complement   string           `json:"complement,omitempty"`
	Neighborhood string           `json:"neighborhood"`
	City         string           `json:"city"`
	State        string           `json:"state"`
	ZipCode      string           `json:"zip_code"`
	Latitude     *decimal.Decimal `json:"latitude,omitempty"`
	Longitude    *decimal.Decimal `json:"longitude,omitempty"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s, %s - %s/%s", a.Street, a.Number, a.City, a.State)
}

// MarshalJSON adds the owner as {"owner": {"type": ..., "id": ...}}.
func (a Address) MarshalJSON() ([]byte, error) {
	type plain Address
	out := struct {
		plain
		Owner *ownerJSON `json:"owner,omitempty"`
	}{plain: plain(a)}
	if a.Owner != nil {
		out.Owner = &ownerJSON{Type: a.Owner.ownerKind(), ID: a.Owner.OwnerID()}
	}
	return json.Marshal(out)
}

type ownerJSON struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}
