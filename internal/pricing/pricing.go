// Package pricing derives the cost, retail and reseller prices of a pack and picks the
// price a viewer sees depending on their role.
package pricing

import (
	"math"

	"topup_store/internal/models"

	"github.com/shopspring/decimal"
)

// Default discounts applied to a provider price when a pack is imported.
var (
	ResellerRate = decimal.RequireFromString("0.95")
	CostRate     = decimal.RequireFromString("0.90")
)

// places is the number of decimal places prices are rounded to.
const places = 2

// Prices holds the three price points of a pack.
type Prices struct {
	Cost     float64
	Retail   float64
	Reseller float64
}

// Sanitize coerces NaN, infinite and negative prices to zero.
func Sanitize(price float64) float64 {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0
	}
	return price
}

// Derive computes default prices from a provider price interpreted as retail. All three
// are rounded to cents, retail included, since that is the precision prices are stored
// and charged at.
func Derive(price float64) Prices {
	retail := decimal.NewFromFloat(Sanitize(price))
	return Prices{
		Retail:   retail.Round(places).InexactFloat64(),
		Reseller: retail.Mul(ResellerRate).Round(places).InexactFloat64(),
		Cost:     retail.Mul(CostRate).Round(places).InexactFloat64(),
	}
}

// DisplayPrice returns the price shown to, and charged from, a viewer with the given
// role. Resellers get the reseller price; admins and normal users see retail.
func DisplayPrice(pack models.Pack, role models.Role) float64 {
	if role == models.RoleReseller {
		return pack.ResellerPrice
	}
	return pack.RetailPrice
}

// PriceRange returns the lowest and highest retail price of the active packs.
// Both are zero when no pack is active.
func PriceRange(packs []models.Pack) (min, max float64) {
	first := true
	for _, pack := range packs {
		if !pack.Active() {
			continue
		}
		if first {
			min, max = pack.RetailPrice, pack.RetailPrice
			first = false
			continue
		}
		min = math.Min(min, pack.RetailPrice)
		max = math.Max(max, pack.RetailPrice)
	}
	return min, max
}
