package httpapi

import (
	"net/http"
	"strconv"

	"github.com/vladislavdragonenkov/campusprint/internal/auth"
	"github.com/vladislavdragonenkov/campusprint/internal/domain"
	"github.com/vladislavdragonenkov/campusprint/internal/pricing"
	"github.com/vladislavdragonenkov/campusprint/internal/service/order"
	"github.com/vladislavdragonenkov/campusprint/internal/service/payment"
	"github.com/vladislavdragonenkov/campusprint/internal/service/shop"
)

type quoteRequest struct {
	ShopID      string             `json:"shopId"`
	UserLat     float64            `json:"userLat"`
	UserLng     float64            `json:"userLng"`
	PrintConfig domain.PrintConfig `json:"printConfig"`
}

type createOrderRequest struct {
	ShopID        string               `json:"shopId"`
	UserLat       float64              `json:"userLat"`
	UserLng       float64              `json:"userLng"`
	PrintConfig   domain.PrintConfig   `json:"printConfig"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	FileKey       string               `json:"fileKey"`
}

type createOrderResponse struct {
	Order   domain.Order      `json:"order"`
	Pricing pricing.Breakdown `json:"pricing"`
}

type updateStatusRequest struct {
	TargetStatus string `json:"targetStatus"`
	Reason       string `json:"reason"`
}

type paymentCallbackRequest struct {
	ProviderOrderID   string `json:"providerOrderId"`
	ProviderPaymentID string `json:"providerPaymentId"`
	Success           bool   `json:"success"`
}

type registerShopRequest struct {
	Name  string       `json:"name"`
	Lat   float64      `json:"lat"`
	Lng   float64      `json:"lng"`
	Rates domain.Rates `json:"rates"`
	Phone string       `json:"phone"`
	Email string       `json:"email"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items}
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request, _ auth.Principal) {
	var req quoteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	breakdown, err := s.orders.Quote(r.Context(), order.QuoteInput{
		ShopID:      req.ShopID,
		UserLat:     req.UserLat,
		UserLng:     req.UserLng,
		PrintConfig: req.PrintConfig,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, breakdown, err := s.orders.Create(r.Context(), order.CreateInput{
		UserID:        p.UserID,
		ShopID:        req.ShopID,
		UserLat:       req.UserLat,
		UserLng:       req.UserLng,
		PrintConfig:   req.PrintConfig,
		PaymentMethod: req.PaymentMethod,
		FileKey:       req.FileKey,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createOrderResponse{Order: created, Pricing: breakdown})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	found, err := s.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if found.UserID != p.UserID && !p.IsAdmin() {
		allowed, err := s.orders.CanManageShop(r.Context(), found.ShopID, p.UserID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !allowed {
			s.writeError(w, r, &domain.AuthorizationError{ActorID: p.UserID, OrderID: found.ID})
			return
		}
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	shopID := r.URL.Query().Get("shopId")
	if shopID == "" {
		orders, err := s.orders.ListByUser(r.Context(), p.UserID, limit)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newList(orders))
		return
	}

	if !p.IsAdmin() {
		allowed, err := s.orders.CanManageShop(r.Context(), shopID, p.UserID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !allowed {
			s.writeError(w, r, domain.ErrForbidden)
			return
		}
	}
	orders, err := s.orders.ListByShop(r.Context(), shopID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(orders))
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	target, err := domain.ParseOrderStatus(req.TargetStatus)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.orders.UpdateStatus(r.Context(), order.UpdateStatusInput{
		OrderID:      r.PathValue("id"),
		TargetStatus: target,
		ActorID:      p.UserID,
		Reason:       req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	initiated, err := s.payments.Initiate(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, initiated)
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	refunded, err := s.payments.Refund(r.Context(), r.PathValue("id"), p.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refunded)
}

func (s *Server) handlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	if !s.callbackAllowed(r) {
		s.writeError(w, r, domain.ErrForbidden)
		return
	}
	var req paymentCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	confirmed, err := s.payments.Confirm(r.Context(), payment.ConfirmInput{
		ProviderOrderID:   req.ProviderOrderID,
		ProviderPaymentID: req.ProviderPaymentID,
		Success:           req.Success,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmed)
}

func (s *Server) handleRegisterShop(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if p.Role != domain.UserRoleShopOwner && !p.IsAdmin() {
		s.writeError(w, r, domain.ErrForbidden)
		return
	}
	var req registerShopRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	registered, err := s.shops.Register(r.Context(), shop.RegisterInput{
		OwnerID: p.UserID,
		Name:    req.Name,
		Lat:     req.Lat,
		Lng:     req.Lng,
		Rates:   req.Rates,
		Phone:   req.Phone,
		Email:   req.Email,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.notifications.ListByUser(r.Context(), p.UserID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newList(items))
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, domain.NewValidationError("limit", "must be a non-negative integer")
	}
	return limit, nil
}
