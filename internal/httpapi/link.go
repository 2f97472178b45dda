package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/haasonsaas/devicelink/internal/linking"
)

type registerRequest struct {
	Code           string `json:"code"`
	DriverName     string `json:"driverName"`
	DeviceName     string `json:"deviceName"`
	ExpiresMinutes int    `json:"expiresMinutes"`
}

type registerResponse struct {
	OK         bool      `json:"ok"`
	Code       string    `json:"code"`
	ExpiresUTC time.Time `json:"expiresUtc"`
}

type confirmRequest struct {
	Code           string `json:"code"`
	GuildID        string `json:"guildId"`
	GuildName      string `json:"guildName"`
	LinkedByUserID string `json:"linkedByUserId"`
}

type confirmResponse struct {
	OK        bool           `json:"ok"`
	Code      string         `json:"code"`
	GuildID   string         `json:"guildId"`
	GuildName string         `json:"guildName"`
	Status    linking.Status `json:"status"`
}

type claimRequest struct {
	Code string `json:"code"`

	// SingleUse defaults to true when omitted.
	SingleUse *bool `json:"singleUse"`
}

type claimResponse struct {
	OK          bool   `json:"ok"`
	Code        string `json:"code"`
	GuildID     string `json:"guildId"`
	GuildName   string `json:"guildName"`
	DeviceToken string `json:"deviceToken"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, tagBadRequest)
		return
	}
	rec, err := s.linker.Register(r.Context(), linking.RegisterRequest{
		Code:       req.Code,
		DriverName: req.DriverName,
		DeviceName: req.DeviceName,
		TTLMinutes: req.ExpiresMinutes,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{
		OK:         true,
		Code:       rec.Code,
		ExpiresUTC: rec.ExpiresAt.UTC(),
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, tagBadRequest)
		return
	}
	rec, err := s.linker.Confirm(r.Context(), linking.ConfirmRequest{
		Code:      req.Code,
		GuildID:   req.GuildID,
		GuildName: req.GuildName,
		UserID:    req.LinkedByUserID,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{
		OK:        true,
		Code:      rec.Code,
		GuildID:   rec.GuildID,
		GuildName: rec.GuildName,
		Status:    rec.Status,
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, tagBadRequest)
		return
	}
	singleUse := true
	if req.SingleUse != nil {
		singleUse = *req.SingleUse
	}
	res, err := s.linker.Claim(r.Context(), req.Code, singleUse)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{
		OK:          true,
		Code:        res.Code,
		GuildID:     res.GuildID,
		GuildName:   res.GuildName,
		DeviceToken: res.DeviceToken,
	})
}

// handleLinkQR renders the confirm command for a pending code as a PNG so a
// device screen can show something an admin scans instead of types.
func (s *Server) handleLinkQR(w http.ResponseWriter, r *http.Request) {
	code := linking.NormalizeCode(r.PathValue("code"))
	if code == "" {
		s.fail(w, r, linking.ErrInvalidCode)
		return
	}
	rec, ok := s.linker.Get(code)
	if !ok {
		s.fail(w, r, linking.ErrUnknownCode)
		return
	}
	if rec.Expired(s.clock()) {
		s.fail(w, r, linking.ErrExpiredCode)
		return
	}
	if rec.Status != linking.StatusPendingDevice {
		writeError(w, http.StatusConflict, tagAlreadyLinked)
		return
	}

	size := 256
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, tagBadRequest)
			return
		}
		size = min(max(n, 128), 512)
	}
	png, err := qrcode.Encode(s.config.CommandPrefix+"link "+rec.Code, qrcode.Medium, size)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png) //nolint:errcheck
}
