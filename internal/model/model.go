package model

import "time"

const (
	StateOpen   = "open"
	StateClosed = "closed"
)

type Event struct {
	ID                 int64      `db:"id" json:"id"`
	Name               string     `db:"name" json:"name"`
	Link               string     `db:"link,omitempty" json:"link,omitempty"`
	MaxAdults          int        `db:"max_adults" json:"max_adults"`
	MaxChildren        int        `db:"max_children" json:"max_children"`
	MaxAdultsPerUser   int        `db:"max_adults_per_user" json:"max_adults_per_user"`
	MaxChildrenPerUser int        `db:"max_children_per_user" json:"max_children_per_user"`
	StartTime          time.Time  `db:"start_time" json:"start_time"`
	State              string     `db:"state" json:"state"`
	PriceAdult         *float64   `db:"price_adult,omitempty" json:"price_adult,omitempty"`
	PriceChild         *float64   `db:"price_child,omitempty" json:"price_child,omitempty"`
	Currency           string     `db:"currency,omitempty" json:"currency,omitempty"`
	RemindAt           *time.Time `db:"-" json:"remind_at,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

type Reservation struct {
	ID          int64     `db:"id" json:"id"`
	EventID     int64     `db:"event_id" json:"event_id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	FirstName   string    `db:"first_name,omitempty" json:"first_name,omitempty"`
	LastName    string    `db:"last_name,omitempty" json:"last_name,omitempty"`
	Adults      int       `db:"adults" json:"adults"`
	Children    int       `db:"children" json:"children"`
	WaitingList bool      `db:"waiting_list" json:"waiting_list"`
	Amount      *float64  `db:"amount,omitempty" json:"amount,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type BlacklistEntry struct {
	UserID    int64     `db:"user_id" json:"user_id"`
	FirstName string    `db:"first_name,omitempty" json:"first_name,omitempty"`
	LastName  string    `db:"last_name,omitempty" json:"last_name,omitempty"`
	Reason    string    `db:"reason,omitempty" json:"reason,omitempty"`
	BannedAt  time.Time `db:"banned_at" json:"banned_at"`
}

type Attachment struct {
	EventID int64  `db:"event_id" json:"event_id"`
	UserID  int64  `db:"user_id" json:"user_id"`
	Note    string `db:"note" json:"note"`
}

// Reminder marks when the participants of an event should be pinged.
// One row per event, removed once fired or when the event goes away.
type Reminder struct {
	EventID  int64     `db:"event_id" json:"event_id"`
	RemindAt time.Time `db:"remind_at" json:"remind_at"`
}
