package api

import (
	"log/slog"
	"net/http"

	"github.com/DigiLync/digilync/internal/models"
)

func (s *Server) listProvidersHandler(w http.ResponseWriter, r *http.Request) {
	providers, err := s.st.ListProviders(r.Context(), models.ProviderFilter{Search: r.URL.Query().Get("search")})
	if err != nil {
		writeStoreError(w, r, "listProviders", "Provider not found", err)
		return
	}
	if providers == nil {
		providers = []models.Provider{}
	}
	writeJSONResponse(w, http.StatusOK, models.Success(providers))
}

func (s *Server) getProviderHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid provider id"))
		return
	}
	p, err := s.st.GetProvider(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "getProvider", "Provider not found", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(p))
}

// providerRequest distinguishes an omitted services list from an empty one.
type providerRequest struct {
	models.Provider
	Services *[]models.ProviderService `json:"services"`
}

func (req *providerRequest) provider() (models.Provider, bool) {
	p := req.Provider
	if req.Services == nil {
		p.Services = nil
		return p, false
	}
	p.Services = *req.Services
	return p, true
}

func (s *Server) createProviderHandler(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	p, _ := req.provider()
	p.Normalize()
	if err := p.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.CreateProvider(r.Context(), &p); err != nil {
		writeStoreError(w, r, "createProvider", "Provider not found", err)
		return
	}
	created, err := s.st.GetProvider(r.Context(), p.ID)
	if err != nil {
		writeStoreError(w, r, "createProvider", "Provider not found", err)
		return
	}
	slog.Info("Server.createProvider: provider created", "id", p.ID, "services", len(created.Services), "request_id", requestID(r.Context()))
	writeJSONResponse(w, http.StatusCreated, models.Success(created))
}

func (s *Server) updateProviderHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid provider id"))
		return
	}
	var req providerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	p, replaceServices := req.provider()
	p.ID = id
	p.Normalize()
	if err := p.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if err := s.st.UpdateProvider(r.Context(), &p, replaceServices); err != nil {
		writeStoreError(w, r, "updateProvider", "Provider not found", err)
		return
	}
	updated, err := s.st.GetProvider(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, "updateProvider", "Provider not found", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(updated))
}

func (s *Server) deleteProviderHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid provider id"))
		return
	}
	if err := s.st.DeleteProvider(r.Context(), id); err != nil {
		writeStoreError(w, r, "deleteProvider", "Provider not found", err)
		return
	}
	slog.Info("Server.deleteProvider: provider deleted", "id", id, "request_id", requestID(r.Context()))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Provider deleted", nil))
}
