// Package pricing defines the boost price catalog entry.
package pricing

import (
	"time"

	"github.com/souq-network/marketplace/internal/app/domain/boost"
)

// Price maps one boost type to its price per duration unit, in minor units.
type Price struct {
	ID           string     `json:"id"`
	BoostType    boost.Type `json:"boost_type"`
	PricePerUnit int64      `json:"price_per_unit"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
