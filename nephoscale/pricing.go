package nephoscale

import "sort"

// PriceLookup resolves the hourly price for a service type. The actual
// pricing catalog lives outside the driver; callers plug one in with
// Driver.SetPriceLookup.
type PriceLookup interface {
	SizePrice(sizeID string) float64
}

// StaticPriceLookup serves prices from a fixed map. Unknown service
// types price at zero, matching the provider catalog's behavior for
// unpublished tiers.
type StaticPriceLookup map[string]float64

func (p StaticPriceLookup) SizePrice(sizeID string) float64 {
	return p[sizeID]
}

// sortSizesByPrice orders the catalog non-decreasing by price. The sort
// is stable so equal-price tiers keep the provider's ordering.
func sortSizesByPrice(sizes []*Size) {
	sort.SliceStable(sizes, func(i, j int) bool {
		return sizes[i].Price < sizes[j].Price
	})
}
