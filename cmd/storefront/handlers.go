package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/gateway"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/httpx"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/market"
	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/session"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "storefront"})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := market.FilterState{
		Biome:        strings.TrimSpace(q.Get("biome")),
		Direction:    strings.TrimSpace(q.Get("direction")),
		Verification: strings.TrimSpace(q.Get("verification")),
		Category:     strings.TrimSpace(q.Get("category")),
		Search:       strings.TrimSpace(q.Get("q")),
	}

	var parseErrs market.ValidationErrors
	if raw := strings.TrimSpace(q.Get("min_price")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			filters.MinPrice = &v
		} else {
			parseErrs = append(parseErrs, market.ValidationError{Field: "min_price", Message: "must be a number"})
		}
	}
	if raw := strings.TrimSpace(q.Get("max_price")); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			filters.MaxPrice = &v
		} else {
			parseErrs = append(parseErrs, market.ValidationError{Field: "max_price", Message: "must be a number"})
		}
	}

	page := 1
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			page = v
		} else {
			parseErrs = append(parseErrs, market.ValidationError{Field: "page", Message: "must be an integer"})
		}
	}
	pageSize := defaultPageSize
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			pageSize = v
		} else {
			parseErrs = append(parseErrs, market.ValidationError{Field: "page_size", Message: "must be an integer"})
		}
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if len(parseErrs) > 0 {
		writeValidationErrors(w, parseErrs)
		return
	}

	user, _ := session.UserFromContext(r.Context())
	result, err := s.Catalog.LoadCatalog(r.Context(), filters, page, pageSize, user)
	if err != nil {
		var verrs market.ValidationErrors
		if errors.As(err, &verrs) {
			writeValidationErrors(w, verrs)
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		httpx.Error(w, http.StatusBadRequest, "item id required")
		return
	}
	user, _ := session.UserFromContext(r.Context())
	item, found, err := s.Catalog.GetItem(r.Context(), id, user)
	if err != nil {
		writeGatewayFailure(w, err)
		return
	}
	if !found {
		httpx.Error(w, http.StatusNotFound, "item not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, item)
}

func (s *Server) handleItemWarp(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		httpx.Error(w, http.StatusBadRequest, "item id required")
		return
	}
	user, _ := session.UserFromContext(r.Context())
	item, found, err := s.Catalog.GetItem(r.Context(), id, user)
	if err != nil {
		writeGatewayFailure(w, err)
		return
	}
	if !found || !item.HasWarp() {
		httpx.Error(w, http.StatusNotFound, "no warp for this item")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(item.WarpCommand + "\n"))
}

func writeValidationErrors(w http.ResponseWriter, errs market.ValidationErrors) {
	httpx.WriteJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   "invalid catalog query",
		"details": errs,
	})
}

func writeGatewayFailure(w http.ResponseWriter, err error) {
	reason := market.ReasonGatewayUnavailable
	if errors.Is(err, gateway.ErrBadResponse) {
		reason = market.ReasonGatewayBadResponse
	}
	httpx.WriteJSON(w, http.StatusBadGateway, map[string]string{
		"error":  "catalog gateway unavailable",
		"reason": reason,
	})
}
