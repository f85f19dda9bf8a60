package api

import (
	"log/slog"
	"net/http"

	"github.com/DigiLync/digilync/internal/models"
)

func (s *Server) listFarmersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.FarmerFilter{
		Search:   q.Get("search"),
		Village:  q.Get("village"),
		Crop:     q.Get("crop"),
		Region:   q.Get("region"),
		District: q.Get("district"),
	}
	farmers, err := s.st.ListFarmers(r.Context(), filter)
	if err != nil {
		writeStoreError(w, r, "listFarmers", "Farmer not found", err)
		return
	}
	if farmers == nil {
		farmers = []models.Farmer{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(farmers))
}

func (s *Server) getFarmerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid farmer id"))
		return
	}
	f, err := s.st.GetFarmer(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "getFarmer", "Farmer not found", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(f))
}

func (s *Server) createFarmerHandler(w http.ResponseWriter, r *http.Request) {
	var f models.Farmer
	if err := decodeJSON(w, r, &f); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	f.Normalize()
	if err := f.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.CreateFarmer(r.Context(), &f); err != nil {
		writeStoreError(w, r, "createFarmer", "Farmer not found", err)
		return
	}
	slog.Info("Server.createFarmer: farmer created", "id", f.ID, "request_id", requestID(r.Context()))
	writeJSONResponse(w, http.StatusCreated, models.Success(f))
}

func (s *Server) updateFarmerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid farmer id"))
		return
	}
	var f models.Farmer
	if err := decodeJSON(w, r, &f); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	f.ID = id
	f.Normalize()
	if err := f.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.UpdateFarmer(r.Context(), &f); err != nil {
		writeStoreError(w, r, "updateFarmer", "Farmer not found", err)
		return
	}
	updated, err := s.st.GetFarmer(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "updateFarmer", "Farmer not found", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(updated))
}

func (s *Server) deleteFarmerHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid farmer id"))
		return
	}
	if err := s.st.DeleteFarmer(r.Context(), id); err != nil {
		writeStoreError(w, r, "deleteFarmer", "Farmer not found", err)
		return
	}
	slog.Info("Server.deleteFarmer: farmer deleted", "id", id, "request_id", requestID(r.Context()))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Farmer deleted", nil))
}
