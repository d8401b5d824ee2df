package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	EventNotFound       = "EVENT_NOT_FOUND"
	EventStarted        = "EVENT_ALREADY_STARTED"
	EventClosed         = "EVENT_CLOSED"
	EventFull           = "EVENT_FULL"
	LimitExceeded       = "LIMIT_EXCEEDED"
	ReservationNotFound = "RESERVATION_NOT_FOUND"
	NotBlacklisted      = "NOT_BLACKLISTED"
	NoteTooLong         = "NOTE_TOO_LONG"
)

type CreateEventRequest struct {
	Name               string     `json:"name" validate:"required,max=255"`
	Link               string     `json:"link"`
	MaxAdults          int        `json:"max_adults" validate:"gte=0"`
	MaxChildren        int        `json:"max_children" validate:"gte=0"`
	MaxAdultsPerUser   int        `json:"max_adults_per_user" validate:"gte=0"`
	MaxChildrenPerUser int        `json:"max_children_per_user" validate:"gte=0"`
	StartTime          time.Time  `json:"start_time" validate:"required,future"`
	RemindAt           *time.Time `json:"remind_at"`
	PriceAdult         *float64   `json:"price_adult"`
	PriceChild         *float64   `json:"price_child"`
	Currency           string     `json:"currency" validate:"max=8"`
}

type UpdateLimitsRequest struct {
	MaxAdults          int `json:"max_adults" validate:"gte=0"`
	MaxChildren        int `json:"max_children" validate:"gte=0"`
	MaxAdultsPerUser   int `json:"max_adults_per_user" validate:"gte=0"`
	MaxChildrenPerUser int `json:"max_children_per_user" validate:"gte=0"`
}

type SignUpRequest struct {
	UserID      int64    `json:"user_id" validate:"required"`
	FirstName   string   `json:"first_name" validate:"max=255"`
	LastName    string   `json:"last_name" validate:"max=255"`
	Adults      int      `json:"adults" validate:"gte=0"`
	Children    int      `json:"children" validate:"gte=0"`
	WaitingList bool     `json:"waiting_list"`
	Amount      *float64 `json:"amount"`
}

type SignUpResponse struct {
	ReservationID int64 `json:"reservation_id"`
	WaitingList   bool  `json:"waiting_list"`
	Blacklisted   bool  `json:"blacklisted"`
}

type CancelRequest struct {
	UserID   int64 `json:"user_id" validate:"required"`
	Adults   int   `json:"adults" validate:"gte=0"`
	Children int   `json:"children" validate:"gte=0"`
}

type WithdrawRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

type CancelResponse struct {
	PromotedUserIDs []int64 `json:"promoted_user_ids"`
}

type BanRequest struct {
	UserID       int64  `json:"user_id" validate:"required"`
	FirstName    string `json:"first_name" validate:"max=255"`
	LastName     string `json:"last_name" validate:"max=255"`
	Reason       string `json:"reason" validate:"max=1024"`
	CancelFuture bool   `json:"cancel_future"`
}

type BanResponse struct {
	// Promotions maps each cleaned-up event to the user IDs its waiting
	// list promoted.
	Promotions map[int64][]int64 `json:"promotions,omitempty"`
}

type AttachmentRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	Note   string `json:"note"`
}

type AttachmentResponse struct {
	Stored bool   `json:"stored"`
	Note   string `json:"note,omitempty"`
}

type EventInfoResponse struct {
	ID                 int64      `json:"id"`
	Name               string     `json:"name"`
	Link               string     `json:"link,omitempty"`
	MaxAdults          int        `json:"max_adults"`
	MaxChildren        int        `json:"max_children"`
	MaxAdultsPerUser   int        `json:"max_adults_per_user"`
	MaxChildrenPerUser int        `json:"max_children_per_user"`
	StartTime          time.Time  `json:"start_time"`
	State              string     `json:"state"`
	VacantAdults       int        `json:"vacant_adults"`
	VacantChildren     int        `json:"vacant_children"`
	PriceAdult         *float64   `json:"price_adult,omitempty"`
	PriceChild         *float64   `json:"price_child,omitempty"`
	Currency           string     `json:"currency,omitempty"`
	RemindAt           *time.Time `json:"remind_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	Reservations []ReservationResponse `json:"reservations,omitempty"`
}

type ReservationResponse struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"event_id"`
	UserID      int64     `json:"user_id"`
	FirstName   string    `json:"first_name,omitempty"`
	LastName    string    `json:"last_name,omitempty"`
	Adults      int       `json:"adults"`
	Children    int       `json:"children"`
	WaitingList bool      `json:"waiting_list"`
	Amount      *float64  `json:"amount,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type BlacklistEntryResponse struct {
	UserID    int64     `json:"user_id"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	BannedAt  time.Time `json:"banned_at"`
}

// Notice is what gets published for external delivery: who to tell and
// why. Delivery itself lives outside this service.
type Notice struct {
	Kind      string    `json:"kind"` // "promotion" or "reminder"
	EventID   int64     `json:"event_id"`
	EventName string    `json:"event_name,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
	UserIDs   []int64   `json:"user_ids"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func NotFoundError(c *ginext.Context, code, desc string) {
	c.JSON(404, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func EventNotFoundError(c *ginext.Context) {
	NotFoundError(c, EventNotFound, "Event not found")
}

func ReservationNotFoundError(c *ginext.Context) {
	NotFoundError(c, ReservationNotFound, "Reservation not found")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
