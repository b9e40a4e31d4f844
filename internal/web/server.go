// Package web is the JSON-over-HTTP boundary of the booking engine.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/tablehold/internal/auth"
	"github.com/example/tablehold/internal/booking"
	"github.com/example/tablehold/internal/domain/reservation"
)

// Engine is the booking surface the handlers need.
type Engine interface {
	Availability(ctx context.Context, restaurantID, date string, partySize int) (booking.Availability, error)
	CreateHold(ctx context.Context, in booking.CreateHoldInput) (reservation.Hold, error)
	GetActiveHold(userID string) *reservation.Hold
	CancelHold(ctx context.Context, holdID, userID string) (reservation.Hold, error)
	ConfirmReservation(ctx context.Context, in booking.ConfirmInput) (reservation.Reservation, error)
	CancelReservation(ctx context.Context, reservationID, userID string) (booking.Refund, error)
	ModifyReservation(ctx context.Context, reservationID, userID string, changes reservation.Changes) (reservation.Reservation, error)
	Settle(ctx context.Context, reservationID string, outcome reservation.Status) (reservation.Reservation, error)
	ListByUser(userID string) []reservation.Reservation
	Slot(ctx context.Context, key reservation.SlotKey) (reservation.SlotCapacity, error)
}

type Server struct {
	Engine Engine
	// Auth is optional; without it the userId in each request is trusted.
	Auth *auth.Store
	Log  zerolog.Logger

	// AdminToken guards the settlement routes. They are not served when empty.
	AdminToken string

	CORSOrigins []string
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.handleLogout)

	mux.HandleFunc("POST /api/availability", s.handleAvailability)
	mux.HandleFunc("POST /api/hold", s.handleCreateHold)
	mux.HandleFunc("GET /api/hold/active", s.handleActiveHold)
	mux.HandleFunc("DELETE /api/hold/{id}", s.handleCancelHold)
	mux.HandleFunc("POST /api/confirm", s.handleConfirm)
	mux.HandleFunc("DELETE /api/reservation/{id}", s.handleCancelReservation)
	mux.HandleFunc("PATCH /api/reservation/{id}", s.handleModifyReservation)
	if s.AdminToken != "" {
		mux.Handle("POST /api/reservation/{id}/complete", requireToken(s.AdminToken, s.handleSettle(reservation.StatusCompleted)))
		mux.Handle("POST /api/reservation/{id}/no-show", requireToken(s.AdminToken, s.handleSettle(reservation.StatusNoShow)))
	}
	mux.HandleFunc("GET /api/reservations", s.handleListReservations)
	mux.HandleFunc("GET /api/slots/{restaurantId}/{date}/{time}", s.handleSlot)

	var h http.Handler = mux
	if s.Auth != nil {
		h = s.Auth.Identify(h)
	}
	h = withCORS(h, s.CORSOrigins)
	return requestLogger(h, s.Log)
}

// decode reads a JSON body, rejecting unknown fields. An empty body is
// accepted when allowEmpty is set.
func decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// actingUser resolves who a request acts for. A session, when present, is
// authoritative and a conflicting userId is refused.
func (s *Server) actingUser(r *http.Request, claimed string) (string, error) {
	if uid, ok := auth.UserIDFromContext(r.Context()); ok {
		if claimed != "" && claimed != uid {
			return "", reservation.ErrNotOwner
		}
		return uid, nil
	}
	if claimed == "" {
		return "", fmt.Errorf("%w: userId required", reservation.ErrInvalidRequest)
	}
	return claimed, nil
}

type availabilityRequest struct {
	RestaurantID string `json:"restaurantId"`
	Date         string `json:"date"`
	PartySize    int    `json:"partySize"`
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	out, err := s.Engine.Availability(r.Context(), req.RestaurantID, req.Date, req.PartySize)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type createHoldResponse struct {
	Hold         reservation.Hold `json:"hold"`
	TotalDeposit int64            `json:"totalDeposit"`
}

func (s *Server) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	var req booking.CreateHoldInput
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	uid, err := s.actingUser(r, req.UserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	req.UserID = uid

	hold, err := s.Engine.CreateHold(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createHoldResponse{Hold: hold, TotalDeposit: hold.DepositAmount})
}

func (s *Server) handleActiveHold(w http.ResponseWriter, r *http.Request) {
	uid, err := s.actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.GetActiveHold(uid))
}

type userRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleCancelHold(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	uid, err := s.actingUser(r, req.UserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	hold, err := s.Engine.CancelHold(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hold)
}

type confirmResponse struct {
	Reservation reservation.Reservation `json:"reservation"`
	Message     string                  `json:"message"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req booking.ConfirmInput
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	uid, err := s.actingUser(r, req.UserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	req.UserID = uid

	res, err := s.Engine.ConfirmReservation(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{
		Reservation: res,
		Message:     fmt.Sprintf("Reservation confirmed. Your confirmation code is %s.", res.ConfirmationCode),
	})
}

type cancelReservationResponse struct {
	RefundAmount     int64  `json:"refundAmount"`
	RefundPercentage int    `json:"refundPercentage"`
	Message          string `json:"message"`
}

func (s *Server) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := decode(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	uid, err := s.actingUser(r, req.UserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	refund, err := s.Engine.CancelReservation(r.Context(), r.PathValue("id"), uid)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelReservationResponse{
		RefundAmount:     refund.Amount,
		RefundPercentage: refund.Percentage,
		Message:          refundMessage(refund),
	})
}

func refundMessage(r booking.Refund) string {
	if r.Percentage == 0 {
		return "Reservation cancelled. Cancellations within 4 hours of the reservation are not refunded."
	}
	return fmt.Sprintf("Reservation cancelled. $%d.%02d (%d%% of your deposit) will be refunded.",
		r.Amount/100, r.Amount%100, r.Percentage)
}

type modifyRequest struct {
	UserID  string              `json:"userId"`
	Changes reservation.Changes `json:"changes"`
}

func (s *Server) handleModifyReservation(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	uid, err := s.actingUser(r, req.UserID)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	res, err := s.Engine.ModifyReservation(r.Context(), r.PathValue("id"), uid, req.Changes)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSettle(outcome reservation.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Engine.Settle(r.Context(), r.PathValue("id"), outcome)
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		res.PaymentMethod = ""
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleListReservations(w http.ResponseWriter, r *http.Request) {
	uid, err := s.actingUser(r, r.URL.Query().Get("userId"))
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.ListByUser(uid))
}

func (s *Server) handleSlot(w http.ResponseWriter, r *http.Request) {
	c, err := s.Engine.Slot(r.Context(), reservation.SlotKey{
		RestaurantID: r.PathValue("restaurantId"),
		Date:         r.PathValue("date"),
		Time:         r.PathValue("time"),
	})
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.Auth == nil {
		writeError(w, http.StatusNotFound, codeSessionsDisabled, "sessions are not enabled")
		return
	}
	var req loginRequest
	if err := decode(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}
	uid, err := s.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "invalid email or password")
			return
		}
		s.writeEngineError(w, r, err)
		return
	}
	if err := s.Auth.SetSession(w, r, uid); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userRequest{UserID: uid})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s.Auth != nil {
		s.Auth.ClearSession(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Start serves h on addr until ctx is cancelled, then shuts down gracefully.
func Start(ctx context.Context, addr string, h http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", addr).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
