package replica

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
)

// SortColumn names a sortable offer field.
type SortColumn string

const (
	SortByID        SortColumn = "id"
	SortByProduct   SortColumn = "product"
	SortByPrice     SortColumn = "price"
	SortByVolume    SortColumn = "volume"
	SortByUpdatedAt SortColumn = "updatedAt"
)

// SortDirection is asc, desc, or empty for unsorted.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// FilterOffers keeps offers whose id, product, price or volume contains text,
// case-insensitively. Blank text returns offers unchanged.
func FilterOffers(offers []domain.Offer, text string) []domain.Offer {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return offers
	}
	out := make([]domain.Offer, 0, len(offers))
	for _, o := range offers {
		if strings.Contains(strconv.FormatInt(o.ID, 10), needle) ||
			strings.Contains(strings.ToLower(o.Product), needle) ||
			strings.Contains(o.Price.String(), needle) ||
			strings.Contains(o.Volume.String(), needle) {
			out = append(out, o)
		}
	}
	return out
}

// SortOffers returns a sorted copy. An empty column or direction returns
// offers unchanged.
func SortOffers(offers []domain.Offer, col SortColumn, dir SortDirection) []domain.Offer {
	if col == "" || dir == "" {
		return offers
	}
	out := slices.Clone(offers)
	slices.SortStableFunc(out, func(a, b domain.Offer) int {
		c := compareBy(col, a, b)
		if dir == SortDesc {
			return -c
		}
		return c
	})
	return out
}

func compareBy(col SortColumn, a, b domain.Offer) int {
	switch col {
	case SortByID:
		return cmp.Compare(a.ID, b.ID)
	case SortByProduct:
		return strings.Compare(strings.ToLower(a.Product), strings.ToLower(b.Product))
	case SortByPrice:
		return a.Price.Cmp(b.Price)
	case SortByVolume:
		return a.Volume.Cmp(b.Volume)
	case SortByUpdatedAt:
		ta, _ := time.Parse(domain.TimestampLayout, a.UpdatedAt)
		tb, _ := time.Parse(domain.TimestampLayout, b.UpdatedAt)
		return ta.Compare(tb)
	default:
		return 0
	}
}
