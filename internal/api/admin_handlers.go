package api

import (
	"net/http"

	"github.com/DigiLync/digilync/internal/models"
)

func (s *Server) listAdminRatingsHandler(w http.ResponseWriter, r *http.Request) {
	rateeType := models.Role(r.URL.Query().Get("ratee_type"))
	rateeID, err := queryID(r, "ratee_id")
	if rateeType == "" || rateeID == 0 || err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrMissingRatee.Error()))
		return
	}
	if rateeType != models.RoleFarmer && rateeType != models.RoleProvider {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrInvalidRateeType.Error()))
		return
	}
	ratings, err := s.st.ListAdminRatings(r.Context(), rateeType, rateeID)
	if err != nil {
		writeStoreError(w, r, "listAdminRatings", "Rating not found", err)
		return
	}
	if ratings == nil {
		ratings = []models.AdminRating{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(ratings))
}

func (s *Server) upsertAdminRatingHandler(w http.ResponseWriter, r *http.Request) {
	var rating models.AdminRating
	if err := decodeJSON(w, r, &rating); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := rating.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.UpsertAdminRating(r.Context(), &rating); err != nil {
		writeStoreError(w, r, "upsertAdminRating", "Rating not found", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rating))
}

func (s *Server) publicMetricsHandler(w http.ResponseWriter, r *http.Request) {
	m, err := s.metrics.Get(r.Context())
	if err != nil {
		writeStoreError(w, r, "publicMetrics", "Metrics not available", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(m))
}
