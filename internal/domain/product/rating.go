package product

import "github.com/shopspring/decimal"

// Rating is the derived review summary stored on a product.
type Rating struct {
	Average decimal.Decimal
	Count   int
}

// RecomputeRating derives a product's rating from its full review set.
// Only approved reviews count. The average is rounded half-up to two places
// and a product without approved reviews has the zero rating (0, 0).
//
// The result depends only on the reviews passed in, so calling it again
// with the same set always yields the same Rating.
func RecomputeRating(reviews []Review) Rating {
	var sum, count int64
	for _, r := range reviews {
		if !r.Approved {
			continue
		}
		sum += int64(r.Rating)
		count++
	}
	if count == 0 {
		return Rating{Average: decimal.Zero}
	}
	return Rating{
		Average: decimal.NewFromInt(sum).DivRound(decimal.NewFromInt(count), 2),
		Count:   int(count),
	}
}
