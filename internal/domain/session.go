package domain

// SessionStatus is the lifecycle state of a trading session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCompleted SessionStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusScheduled, SessionStatusCompleted:
		return true
	default:
		return false
	}
}

// TradingSession is a scheduled market window. Offers is a derived view of the
// store and is always encoded, as [] when the session has none.
type TradingSession struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	StartTime string        `json:"startTime"`
	EndTime   string        `json:"endTime"`
	Status    SessionStatus `json:"status"`
	Products  []string      `json:"products"`
	CreatedAt string        `json:"createdAt"`
	Offers    []Offer       `json:"offers"`
}
