package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"eventqueue/internal/checkin"
)

var errBlankStation = errors.New("stationId must not be blank")

type stationKey struct {
	activityID string
	stationID  string
}

// station returns the scan session for one operator device. Codes decode on
// the device, so sessions have no server-side camera.
func (s *Server) station(activityID, stationID string) (*checkin.ScannerSession, bool) {
	if stationID = strings.TrimSpace(stationID); stationID == "" {
		return nil, false
	}
	k := stationKey{activityID: activityID, stationID: stationID}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[k]
	if !ok {
		st = checkin.NewScannerSession(s.Intake, activityID, nil)
		s.stations[k] = st
	}
	return st, true
}

type intakeResponse struct {
	Accepted     bool                `json:"accepted"`
	State        string              `json:"state"`
	Assignment   *checkin.Assignment `json:"assignment,omitempty"`
	Message      string              `json:"message"`
	ResetAfterMs int64               `json:"resetAfterMs"`
}

func (s *Server) intakeScan(c *gin.Context) {
	var req struct {
		StationID string `json:"stationId" binding:"required"`
		Payload   string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, ok := s.station(c.Param("id"), req.StationID)
	if !ok {
		badRequest(c, errBlankStation)
		return
	}
	out, accepted := st.HandleDecode(c.Request.Context(), req.Payload)
	s.respondIntake(c, st, out, accepted)
}

func (s *Server) intakeSearch(c *gin.Context) {
	var req struct {
		StationID  string `json:"stationId" binding:"required"`
		NationalID string `json:"nationalId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, ok := s.station(c.Param("id"), req.StationID)
	if !ok {
		badRequest(c, errBlankStation)
		return
	}
	out, accepted := st.Search(c.Request.Context(), req.NationalID)
	s.respondIntake(c, st, out, accepted)
}

// respondIntake answers 202 for an input dropped while the station was still
// showing the previous outcome.
func (s *Server) respondIntake(c *gin.Context, st *checkin.ScannerSession, out checkin.Outcome, accepted bool) {
	resp := intakeResponse{
		Accepted:     accepted,
		State:        st.State().String(),
		Assignment:   out.Assignment,
		Message:      out.Message,
		ResetAfterMs: st.ReadyIn().Milliseconds(),
	}
	if !accepted {
		c.JSON(http.StatusAccepted, resp)
		return
	}
	status := http.StatusOK
	if out.Err != nil {
		status = statusOf(out.Err)
		if status == http.StatusInternalServerError {
			s.fail(c, "intake", out.Err)
			return
		}
	}
	c.JSON(status, resp)
}

func (s *Server) closeStation(c *gin.Context) {
	k := stationKey{activityID: c.Param("id"), stationID: c.Param("stationId")}
	s.mu.Lock()
	st, ok := s.stations[k]
	delete(s.stations, k)
	s.mu.Unlock()
	if ok {
		_ = st.Close()
	}
	c.Status(http.StatusNoContent)
}
