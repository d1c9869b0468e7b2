package http

import (
	"encoding/json"
	"net/http"

	"horizon/internal/domain/notification"
)

type NotificationHandler struct {
	notificationService *notification.Service
	errors              *Errors
}

func NewNotificationHandler(notificationService *notification.Service, errors *Errors) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService, errors: errors}
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// HandleRegisterDevice handles POST /api/notifications/devices
func (h *NotificationHandler) HandleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, ok := currentUserID(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.BadRequest(w, "Invalid request body")
		return
	}

	token, err := h.notificationService.RegisterDevice(r.Context(), notification.RegisterDeviceParams{
		UserID:   userID,
		Token:    req.Token,
		Platform: req.Platform,
	})
	if err != nil {
		h.errors.Write(w, "register device", err)
		return
	}

	writeJSON(w, http.StatusCreated, token)
}
