package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DigiLync/digilync/internal/models"
	"github.com/DigiLync/digilync/internal/store"
)

func (s *Server) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	filter := models.BookingFilter{Status: models.BookingStatus(r.URL.Query().Get("status"))}
	if filter.Status != "" && !models.IsValidBookingStatus(filter.Status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidBookingState.Error()))
		return
	}
	var err error
	if filter.FarmerID, err = queryID(r, "farmer_id"); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if filter.ProviderID, err = queryID(r, "provider_id"); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	bookings, err := s.st.ListBookings(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, "listBookings", "Booking not found", err)
		return
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(bookings))
}

func (s *Server) getBookingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid booking id"))
		return
	}
	b, err := s.st.GetBooking(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "getBooking", "Booking not found", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(b))
}

// decodeBooking reads, normalizes and validates a booking body and checks
// that both parties exist. It writes the error response itself.
func (s *Server) decodeBooking(w http.ResponseWriter, r *http.Request) (models.Booking, bool) {
	var b models.Booking
	if err := decodeJSON(w, r, &b); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return b, false
	}
	b.Normalize()
	if err := b.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return b, false
	}
	if _, err := s.st.GetFarmer(r.Context(), b.FarmerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Farmer does not exist"))
		} else {
			writeStoreError(w, r, "checkFarmer", "Farmer not found", err)
		}
		return b, false
	}
	if _, err := s.st.GetProvider(r.Context(), b.ProviderID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Provider does not exist"))
		} else {
			writeStoreError(w, r, "checkProvider", "Provider not found", err)
		}
		return b, false
	}
	return b, true
}

func (s *Server) createBookingHandler(w http.ResponseWriter, r *http.Request) {
	b, ok := s.decodeBooking(w, r)
	if !ok {
		return
	}
	if err := s.st.CreateBooking(r.Context(), &b); err != nil {
		writeStoreError(w, r, "createBooking", "Booking not found", err)
		return
	}
	slog.Info("Server.createBooking: booking created", "id", b.ID, "farmer_id", b.FarmerID, "provider_id", b.ProviderID, "request_id", requestID(r.Context()))
	writeJSONResponse(w, http.StatusCreated, models.Success(b))
}

func (s *Server) updateBookingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid booking id"))
		return
	}
	b, ok := s.decodeBooking(w, r)
	if !ok {
		return
	}
	b.ID = id
	if err := s.st.UpdateBooking(r.Context(), &b); err != nil {
		writeStoreError(w, r, "updateBooking", "Booking not found", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(b))
}

func (s *Server) updateBookingStatusHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid booking id"))
		return
	}
	var req struct {
		Status models.BookingStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if !models.IsValidBookingStatus(req.Status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidBookingState.Error()))
		return
	}
	if err := s.st.UpdateBookingStatus(r.Context(), id, req.Status); err != nil {
		writeStoreError(w, r, "updateBookingStatus", "Booking not found", err)
		return
	}
	b, err := s.st.GetBooking(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "updateBookingStatus", "Booking not found", err)
		return
	}
	slog.Info("Server.updateBookingStatus: status changed", "id", id, "status", req.Status, "request_id", requestID(r.Context()))
	writeJSONResponse(w, http.StatusOK, models.Success(b))
}

func (s *Server) deleteBookingHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid booking id"))
		return
	}
	if err := s.st.DeleteBooking(r.Context(), id); err != nil {
		writeStoreError(w, r, "deleteBooking", "Booking not found", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Booking deleted", nil))
}
