package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/campusprint/internal/auth"
	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

const maxBodyBytes = 1 << 20

// errorResponse описывает тело ответа с ошибкой.
type errorResponse struct {
	Error string             `json:"error"`
	Field string             `json:"field,omitempty"`
	From  domain.OrderStatus `json:"from,omitempty"`
	To    domain.OrderStatus `json:"to,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.NewValidationError("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	return nil
}

// statusFor сопоставляет доменную ошибку с HTTP-статусом.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		domain.IsVersionConflict(err),
		errors.Is(err, domain.ErrPaymentAlreadySettled),
		errors.Is(err, domain.ErrPaymentNotRefundable),
		errors.Is(err, domain.ErrPaymentAlreadyExists),
		errors.Is(err, domain.ErrShopAlreadyExists),
		errors.Is(err, domain.ErrOrderAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInfrastructure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorResponse{Error: err.Error()}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		body.Field = validation.Field
	}
	var transition *domain.InvalidTransitionError
	if errors.As(err, &transition) {
		body.From = transition.From
		body.To = transition.To
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}
