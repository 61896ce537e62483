package replica

import (
	"testing"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/stretchr/testify/assert"
)

func ids(offers []domain.Offer) []int64 {
	out := make([]int64, 0, len(offers))
	for _, o := range offers {
		out = append(out, o.ID)
	}
	return out
}

func TestFilterOffers(t *testing.T) {
	offers := []domain.Offer{offer(1, 1, "Grain", 150), offer(2, 1, "Gold", 2000), offer(13, 1, "Oil", 75)}

	assert.Equal(t, []int64{1, 2}, ids(FilterOffers(offers, " g ")))
	assert.Equal(t, []int64{13}, ids(FilterOffers(offers, "3")))
	assert.Equal(t, offers, FilterOffers(offers, "  "))
}

func TestSortOffers(t *testing.T) {
	offers := []domain.Offer{offer(1, 1, "grain", 150), offer(2, 1, "Gold", 2000), offer(3, 1, "Oil", 75)}

	assert.Equal(t, []int64{3, 1, 2}, ids(SortOffers(offers, SortByPrice, SortAsc)))
	assert.Equal(t, []int64{3, 1, 2}, ids(SortOffers(offers, SortByProduct, SortDesc)))
	assert.Equal(t, []int64{1, 2, 3}, ids(SortOffers(offers, "", SortAsc)))
	assert.Equal(t, []int64{1, 2, 3}, ids(offers), "input is not reordered")
}
