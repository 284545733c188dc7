package entitlement

import "time"

type Kind string

const (
	KindDrink Kind = "drink"
	KindMeal  Kind = "meal"
)

// Valid reports whether k is one of the two redeemable kinds.
func (k Kind) Valid() bool {
	return k == KindDrink || k == KindMeal
}

// Limits are the per-guest counters a record starts with.
type Limits struct {
	Drinks int
	Meals  int
}

// DefaultLimits matches the event policy: 3 drinks, 1 meal per guest.
var DefaultLimits = Limits{Drinks: 3, Meals: 1}

// Record is one guest's entitlement ledger entry, keyed by the public key
// from their check-in URL. Created once on first scan, counters only ever
// go down.
type Record struct {
	ID                 string     `firestore:"-" json:"id"`
	PublicKey          string     `firestore:"publicKey" json:"public_key"`
	EventID            string     `firestore:"eventId" json:"event_id"`
	Email              string     `firestore:"email" json:"email"`
	AttendeeName       string     `firestore:"attendeeName" json:"attendee_name"`
	RemainingDrinks    int        `firestore:"remainingDrinks" json:"remaining_drinks"`
	RemainingMeals     int        `firestore:"remainingMeals" json:"remaining_meals"`
	LumaVerified       bool       `firestore:"lumaVerified" json:"luma_verified"`
	CreatedAt          time.Time  `firestore:"createdAt" json:"created_at"`
	LastRedemptionType Kind       `firestore:"lastRedemptionType,omitempty" json:"last_redemption_type,omitempty"`
	LastRedemptionAt   *time.Time `firestore:"lastRedemptionAt,omitempty" json:"last_redemption_at,omitempty"`
}

// Remaining returns the counter for the given kind.
func (r *Record) Remaining(kind Kind) int {
	if kind == KindMeal {
		return r.RemainingMeals
	}
	return r.RemainingDrinks
}
