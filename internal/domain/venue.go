package domain

// Venue identifies the trading protocol a swap was decoded from.
type Venue string

const (
	VenueJupiter Venue = "jupiter"
	VenuePumpFun Venue = "pumpfun"
)

func (v Venue) String() string {
	return string(v)
}

// IsValid checks if the venue is a known value.
func (v Venue) IsValid() bool {
	return v == VenueJupiter || v == VenuePumpFun
}
