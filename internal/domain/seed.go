package domain

import "github.com/shopspring/decimal"

// SeedSessions returns the fixed catalog of trading sessions served by the
// read API. Sessions are never mutated after startup.
func SeedSessions() []TradingSession {
	return []TradingSession{
		{
			ID:        1,
			Name:      "Morning Session",
			StartTime: "2026-02-11T09:00:00Z",
			EndTime:   "2026-02-11T12:00:00Z",
			Status:    SessionStatusActive,
			Products:  []string{"Grain", "Oil", "Gold"},
			CreatedAt: "2026-02-11T08:00:00Z",
		},
		{
			ID:        2,
			Name:      "Afternoon Session",
			StartTime: "2026-02-11T13:00:00Z",
			EndTime:   "2026-02-11T17:00:00Z",
			Status:    SessionStatusScheduled,
			Products:  []string{"Silver", "Copper"},
			CreatedAt: "2026-02-11T08:00:00Z",
		},
		{
			ID:        3,
			Name:      "Evening Session",
			StartTime: "2026-02-10T18:00:00Z",
			EndTime:   "2026-02-10T22:00:00Z",
			Status:    SessionStatusCompleted,
			Products:  []string{"Platinum", "Palladium"},
			CreatedAt: "2026-02-10T08:00:00Z",
		},
	}
}

// SeedOffers returns the offers the store is initialized with at startup.
func SeedOffers() []Offer {
	return []Offer{
		{ID: 1, SessionID: 1, Product: "Grain", Price: decimal.RequireFromString("150.50"), Volume: decimal.NewFromInt(1000), UpdatedAt: "2026-02-11T09:15:00Z"},
		{ID: 2, SessionID: 1, Product: "Oil", Price: decimal.RequireFromString("75.25"), Volume: decimal.NewFromInt(500), UpdatedAt: "2026-02-11T09:20:00Z"},
		{ID: 3, SessionID: 1, Product: "Gold", Price: decimal.RequireFromString("2000.00"), Volume: decimal.NewFromInt(100), UpdatedAt: "2026-02-11T09:25:00Z"},
		{ID: 4, SessionID: 2, Product: "Silver", Price: decimal.RequireFromString("25.75"), Volume: decimal.NewFromInt(2000), UpdatedAt: "2026-02-11T13:10:00Z"},
		{ID: 5, SessionID: 2, Product: "Copper", Price: decimal.RequireFromString("4.50"), Volume: decimal.NewFromInt(5000), UpdatedAt: "2026-02-11T13:15:00Z"},
		{ID: 6, SessionID: 3, Product: "Platinum", Price: decimal.RequireFromString("950.00"), Volume: decimal.NewFromInt(50), UpdatedAt: "2026-02-10T18:30:00Z"},
	}
}

// SessionIDs returns the ids of the given sessions in order.
func SessionIDs(sessions []TradingSession) []int64 {
	ids := make([]int64, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}
