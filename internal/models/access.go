package models

import (
	"strconv"
	"time"
)

// Access is a standing entitlement of an account to a product.
type Access struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	ProductID int64     `json:"product_id"`
	Scope     int       `json:"scope"` // number of unlocked volumes
	GrantedAt time.Time `json:"granted_at"`
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
