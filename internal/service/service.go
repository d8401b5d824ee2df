package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"slotbot/internal/dto"
	"slotbot/internal/model"
	"slotbot/internal/repo"
	"slotbot/pkg/validator"
)

// Publisher is the outbound notice boundary, implemented by the rabbit
// client.
type Publisher interface {
	Publish(message []byte) error
}

type Service interface {
	CreateEvent(ctx *ginext.Context)
	GetEvent(ctx *ginext.Context)
	ListEvents(ctx *ginext.Context)
	SetEventState(ctx *ginext.Context)
	UpdateLimits(ctx *ginext.Context)
	DeleteEvent(ctx *ginext.Context)

	SignUp(ctx *ginext.Context)
	Cancel(ctx *ginext.Context)
	Withdraw(ctx *ginext.Context)

	SetAttachment(ctx *ginext.Context)
	GetAttachment(ctx *ginext.Context)

	Ban(ctx *ginext.Context)
	Unban(ctx *ginext.Context)
	ListBlacklist(ctx *ginext.Context)
}

type service struct {
	repo     repo.Repository
	log      *zerolog.Logger
	pub      Publisher
	pageSize int
}

func NewService(repo repo.Repository, logger *zerolog.Logger, pub Publisher, pageSize int) Service {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &service{
		repo:     repo,
		log:      logger,
		pub:      pub,
		pageSize: pageSize,
	}
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		s.log.Error().Msgf("validation failed: %v", verr)
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event := &model.Event{
		Name:               req.Name,
		Link:               req.Link,
		MaxAdults:          req.MaxAdults,
		MaxChildren:        req.MaxChildren,
		MaxAdultsPerUser:   req.MaxAdultsPerUser,
		MaxChildrenPerUser: req.MaxChildrenPerUser,
		StartTime:          req.StartTime,
		PriceAdult:         req.PriceAdult,
		PriceChild:         req.PriceChild,
		Currency:           req.Currency,
	}

	id, err := s.repo.CreateEvent(ctx.Request.Context(), event, req.RemindAt)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create event in DB")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("event_id", id).Msg("event created successfully")

	event.ID = id
	event.State = model.StateOpen
	event.RemindAt = req.RemindAt
	dto.SuccessCreatedResponse(ctx, eventInfo(event, req.MaxAdults, req.MaxChildren, nil))
}

func (s *service) GetEvent(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to get event")
		dto.InternalServerError(ctx)
		return
	}

	vacAdults, vacChildren, err := s.repo.Vacancy(ctx.Request.Context(), eventID)
	if err != nil {
		// The event can disappear between the two reads.
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to compute vacancy")
		dto.InternalServerError(ctx)
		return
	}

	var reservations []dto.ReservationResponse
	if ctx.Query("admin") == "true" {
		rows, err := s.repo.ListReservations(ctx.Request.Context(), eventID)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to get reservations for admin view")
			dto.InternalServerError(ctx)
			return
		}
		for _, r := range rows {
			reservations = append(reservations, reservationResponse(r))
		}
	}

	dto.SuccessResponse(ctx, eventInfo(event, vacAdults, vacChildren, reservations))
}

func (s *service) ListEvents(ctx *ginext.Context) {
	offset, limit := s.pagination(ctx)

	events, err := s.repo.ListEvents(ctx.Request.Context(), offset, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list events")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.EventInfoResponse, 0, len(events))
	for i := range events {
		e := &events[i]
		vacAdults, vacChildren, err := s.repo.Vacancy(ctx.Request.Context(), e.ID)
		if err != nil {
			s.log.Error().Err(err).Int64("event_id", e.ID).Msg("failed to compute vacancy for event")
			continue
		}
		resp = append(resp, eventInfo(e, vacAdults, vacChildren, nil))
	}

	dto.SuccessResponse(ctx, resp)
}

func (s *service) SetEventState(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	var req struct {
		State string `json:"state"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	switch err := s.repo.SetEventState(ctx.Request.Context(), eventID, req.State); {
	case err == nil:
	case errors.Is(err, repo.ErrEventNotFound):
		dto.EventNotFoundError(ctx)
		return
	case errors.Is(err, repo.ErrInvalidState):
		dto.BadResponseError(ctx, dto.FieldIncorrect, "State must be 'open' or 'closed'")
		return
	default:
		s.log.Error().Err(err).Msg("failed to update event state")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("event_id", eventID).Str("state", req.State).Msg("event state updated")
	dto.SuccessResponse(ctx, nil)
}

func (s *service) UpdateLimits(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	var req dto.UpdateLimitsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	err = s.repo.UpdateEventLimits(ctx.Request.Context(), eventID,
		req.MaxAdults, req.MaxChildren, req.MaxAdultsPerUser, req.MaxChildrenPerUser)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to update event limits")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, nil)
}

func (s *service) DeleteEvent(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	ban := ctx.Query("ban") == "true"
	reason := ctx.Query("reason")
	if ban && reason == "" {
		reason = "event deleted"
	}

	if err := s.repo.DeleteEventTx(ctx.Request.Context(), eventID, ban, reason); err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to delete event")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("event_id", eventID).Bool("ban", ban).Msg("event deleted")
	dto.SuccessResponse(ctx, nil)
}

func (s *service) SignUp(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	var req dto.SignUpRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	if req.Adults+req.Children == 0 {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "At least one slot must be requested")
		return
	}

	result, err := s.repo.SignUpTx(ctx.Request.Context(), repo.SignUpRequest{
		EventID:     eventID,
		UserID:      req.UserID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Adults:      req.Adults,
		Children:    req.Children,
		WaitingList: req.WaitingList,
		At:          time.Now(),
		Amount:      req.Amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrEventNotFound):
			dto.EventNotFoundError(ctx)
		case errors.Is(err, repo.ErrEventStarted):
			dto.BadResponseError(ctx, dto.EventStarted, "Event already started")
		case errors.Is(err, repo.ErrEventClosed):
			dto.BadResponseError(ctx, dto.EventClosed, "Event is closed")
		case errors.Is(err, repo.ErrLimitExceeded):
			dto.BadResponseError(ctx, dto.LimitExceeded, "Per-user reservation limit reached")
		case errors.Is(err, repo.ErrEventFull):
			dto.BadResponseError(ctx, dto.EventFull, "Not enough free slots, retry with waiting_list")
		default:
			s.log.Error().Err(err).Msg("failed to sign up")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().
		Int64("reservation_id", result.ReservationID).
		Int64("event_id", eventID).
		Int64("user_id", req.UserID).
		Bool("waiting_list", result.WaitingList).
		Bool("blacklisted", result.Blacklisted).
		Msg("reservation created")

	dto.SuccessCreatedResponse(ctx, dto.SignUpResponse{
		ReservationID: result.ReservationID,
		WaitingList:   result.WaitingList,
		Blacklisted:   result.Blacklisted,
	})
}

func (s *service) Cancel(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	var req dto.CancelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	promoted, err := s.repo.CancelTx(ctx.Request.Context(), eventID, req.UserID, req.Adults, req.Children, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrEventNotFound):
			dto.EventNotFoundError(ctx)
		case errors.Is(err, repo.ErrReservationNotFound):
			dto.ReservationNotFoundError(ctx)
		default:
			s.log.Error().Err(err).Msg("failed to cancel reservation")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.publishPromotions(eventID, promoted)
	dto.SuccessResponse(ctx, dto.CancelResponse{PromotedUserIDs: promoted})
}

func (s *service) Withdraw(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	var req dto.WithdrawRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	promoted, err := s.repo.WithdrawAllTx(ctx.Request.Context(), eventID, req.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.EventNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to withdraw reservations")
		dto.InternalServerError(ctx)
		return
	}

	s.publishPromotions(eventID, promoted)
	dto.SuccessResponse(ctx, dto.CancelResponse{PromotedUserIDs: promoted})
}

func (s *service) SetAttachment(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	var req dto.AttachmentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	stored, err := s.repo.SetAttachment(ctx.Request.Context(), eventID, req.UserID, req.Note)
	if err != nil {
		if errors.Is(err, repo.ErrNoteTooLong) {
			dto.BadResponseError(ctx, dto.NoteTooLong, "Note exceeds maximum length")
			return
		}
		s.log.Error().Err(err).Msg("failed to set attachment")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.AttachmentResponse{Stored: stored})
}

func (s *service) GetAttachment(ctx *ginext.Context) {
	eventID, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	userID, err := strconv.ParseInt(ctx.Query("user_id"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid user ID")
		return
	}

	note, found, err := s.repo.GetAttachment(ctx.Request.Context(), eventID, userID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get attachment")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.AttachmentResponse{Stored: found, Note: note})
}

func (s *service) Ban(ctx *ginext.Context) {
	var req dto.BanRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	promotions, err := s.repo.Ban(ctx.Request.Context(), model.BlacklistEntry{
		UserID:    req.UserID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Reason:    req.Reason,
	}, req.CancelFuture)

	// The fan-out is best effort per event; promotions that did happen
	// must still be announced even when a later event failed.
	for eventID, users := range promotions {
		s.publishPromotions(eventID, users)
	}
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", req.UserID).Msg("ban fan-out incomplete")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("user_id", req.UserID).Bool("cancel_future", req.CancelFuture).Msg("user banned")
	dto.SuccessResponse(ctx, dto.BanResponse{Promotions: promotions})
}

func (s *service) Unban(ctx *ginext.Context) {
	userID, err := strconv.ParseInt(ctx.Param("userID"), 10, 64)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid user ID")
		return
	}

	if err := s.repo.Unban(ctx.Request.Context(), userID); err != nil {
		if errors.Is(err, repo.ErrNotBlacklisted) {
			dto.NotFoundError(ctx, dto.NotBlacklisted, "User is not blacklisted")
			return
		}
		s.log.Error().Err(err).Msg("failed to unban user")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Int64("user_id", userID).Msg("user unbanned")
	dto.SuccessResponse(ctx, nil)
}

func (s *service) ListBlacklist(ctx *ginext.Context) {
	offset, limit := s.pagination(ctx)

	entries, err := s.repo.ListBlacklist(ctx.Request.Context(), offset, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list blacklist")
		dto.InternalServerError(ctx)
		return
	}

	resp := make([]dto.BlacklistEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, dto.BlacklistEntryResponse{
			UserID:    e.UserID,
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Reason:    e.Reason,
			BannedAt:  e.BannedAt,
		})
	}

	dto.SuccessResponse(ctx, resp)
}

func (s *service) pagination(ctx *ginext.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(ctx.Query("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, _ = strconv.Atoi(ctx.Query("limit"))
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	return offset, limit
}

func (s *service) publishPromotions(eventID int64, users []int64) {
	if len(users) == 0 {
		return
	}
	payload, err := json.Marshal(dto.Notice{
		Kind:    "promotion",
		EventID: eventID,
		UserIDs: users,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal promotion notice")
		return
	}
	if err := s.pub.Publish(payload); err != nil {
		s.log.Error().Err(err).Int64("event_id", eventID).Msg("failed to publish promotion notice")
	}
}

func eventInfo(e *model.Event, vacAdults, vacChildren int, reservations []dto.ReservationResponse) dto.EventInfoResponse {
	return dto.EventInfoResponse{
		ID:                 e.ID,
		Name:               e.Name,
		Link:               e.Link,
		MaxAdults:          e.MaxAdults,
		MaxChildren:        e.MaxChildren,
		MaxAdultsPerUser:   e.MaxAdultsPerUser,
		MaxChildrenPerUser: e.MaxChildrenPerUser,
		StartTime:          e.StartTime,
		State:              e.State,
		VacantAdults:       vacAdults,
		VacantChildren:     vacChildren,
		PriceAdult:         e.PriceAdult,
		PriceChild:         e.PriceChild,
		Currency:           e.Currency,
		RemindAt:           e.RemindAt,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
		Reservations:       reservations,
	}
}

func reservationResponse(r model.Reservation) dto.ReservationResponse {
	return dto.ReservationResponse{
		ID:          r.ID,
		EventID:     r.EventID,
		UserID:      r.UserID,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		Adults:      r.Adults,
		Children:    r.Children,
		WaitingList: r.WaitingList,
		Amount:      r.Amount,
		CreatedAt:   r.CreatedAt,
	}
}
