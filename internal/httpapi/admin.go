package httpapi

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/haasonsaas/devicelink/internal/cron"
	"github.com/haasonsaas/devicelink/internal/identity"
	"github.com/haasonsaas/devicelink/internal/linking"
)

// linkView is a link record without its credential.
type linkView struct {
	Code           string         `json:"code"`
	Status         linking.Status `json:"status"`
	DriverName     string         `json:"driverName,omitempty"`
	DeviceName     string         `json:"deviceName,omitempty"`
	GuildID        string         `json:"guildId,omitempty"`
	GuildName      string         `json:"guildName,omitempty"`
	LinkedByUserID string         `json:"linkedByUserId,omitempty"`
	HasDeviceToken bool           `json:"hasDeviceToken"`
	CreatedUTC     time.Time      `json:"createdUtc"`
	ExpiresUTC     time.Time      `json:"expiresUtc"`
	ConfirmedUTC   *time.Time     `json:"confirmedUtc,omitempty"`
	ClaimedUTC     *time.Time     `json:"claimedUtc,omitempty"`
}

type threadView struct {
	Identity string `json:"identity"`
	GuildID  string `json:"guildId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	ThreadID string `json:"threadId"`
}

type threadsResponse struct {
	OK    bool         `json:"ok"`
	Items []threadView `json:"items"`
}

func (s *Server) handleAdminLink(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.linker.Get(r.PathValue("code"))
	if !ok {
		writeError(w, http.StatusNotFound, linking.TagUnknownCode)
		return
	}
	view := linkView{
		Code:           rec.Code,
		Status:         rec.Status,
		DriverName:     rec.DriverName,
		DeviceName:     rec.DeviceName,
		GuildID:        rec.GuildID,
		GuildName:      rec.GuildName,
		LinkedByUserID: rec.ConfirmedByUserID,
		HasDeviceToken: rec.DeviceCredential != "",
		CreatedUTC:     rec.CreatedAt.UTC(),
		ExpiresUTC:     rec.ExpiresAt.UTC(),
		ConfirmedUTC:   optionalTime(rec.ConfirmedAt),
		ClaimedUTC:     optionalTime(rec.ClaimedAt),
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAdminThreads(w http.ResponseWriter, r *http.Request) {
	if s.threads == nil {
		writeError(w, http.StatusNotFound, tagNotFound)
		return
	}
	snapshot, err := s.threads.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	items := make([]threadView, 0, len(snapshot))
	for raw, threadID := range snapshot {
		view := threadView{Identity: raw, ThreadID: strconv.FormatUint(threadID, 10)}
		if key, err := identity.Parse(raw); err == nil {
			view.GuildID, view.UserID = key.GuildID, key.UserID
		}
		items = append(items, view)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Identity < items[j].Identity })
	writeJSON(w, http.StatusOK, threadsResponse{OK: true, Items: items})
}

type jobsResponse struct {
	OK    bool          `json:"ok"`
	Items []cron.Status `json:"items"`
}

func (s *Server) handleAdminJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusNotFound, tagNotFound)
		return
	}
	items := s.jobs.Jobs()
	if items == nil {
		items = []cron.Status{}
	}
	writeJSON(w, http.StatusOK, jobsResponse{OK: true, Items: items})
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
