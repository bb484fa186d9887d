package model

const (
	SeasonSpring = "Spring"
	SeasonSummer = "Summer"
	SeasonFall   = "Fall"
	SeasonWinter = "Winter"
)

// Term groups courses per owner. At most one term per owner is active;
// creating a term through the resolver deactivates its siblings.
type Term struct {
	ID         int64  `json:"id" db:"id"`
	Nickname   string `json:"nickname" db:"nickname"`
	Season     string `json:"season" db:"season"`
	Year       int    `json:"year" db:"year"`
	SchoolName string `json:"school_name" db:"school_name"`
	Active     bool   `json:"active" db:"active"`
	OwnerID    int64  `json:"owner_id" db:"owner_id"`
}
