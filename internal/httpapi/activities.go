package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"eventqueue/internal/checkin"
)

func (s *Server) createActivity(c *gin.Context) {
	var req struct {
		Name    string               `json:"name" binding:"required"`
		Type    checkin.ActivityType `json:"type"`
		Courses []string             `json:"courses"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	a, err := s.Registrations.CreateActivity(c.Request.Context(), req.Name, req.Type, req.Courses)
	if err != nil {
		s.fail(c, "create activity", err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (s *Server) getActivity(c *gin.Context) {
	a, err := s.Registrations.Activity(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "get activity", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		FullName           string `json:"fullName" binding:"required"`
		StudentID          string `json:"studentId"`
		NationalID         string `json:"nationalId" binding:"required"`
		Course             string `json:"course"`
		LineUserID         string `json:"lineUserId"`
		DisplayQueueNumber string `json:"displayQueueNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reg, err := s.Registrations.Register(c.Request.Context(), c.Param("id"), checkin.RegisterInput{
		FullName:           req.FullName,
		StudentID:          req.StudentID,
		NationalID:         req.NationalID,
		Course:             req.Course,
		LineUserID:         req.LineUserID,
		DisplayQueueNumber: req.DisplayQueueNumber,
	})
	if err != nil {
		s.fail(c, "register", err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

func (s *Server) listRegistrations(c *gin.Context) {
	regs, err := s.Registrations.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "list registrations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": regs})
}

func (s *Server) getRegistration(c *gin.Context) {
	reg, err := s.Registrations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "get registration", err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (s *Server) setDisplayNumber(c *gin.Context) {
	var req struct {
		DisplayQueueNumber string `json:"displayQueueNumber" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	reg, err := s.Registrations.SetDisplayQueueNumber(c.Request.Context(), c.Param("id"), req.DisplayQueueNumber)
	if err != nil {
		s.fail(c, "set display number", err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

func (s *Server) linkProfile(c *gin.Context) {
	var req struct {
		LineUserID string `json:"lineUserId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.Registrations.LinkProfile(c.Request.Context(), c.Param("nationalId"), req.LineUserID)
	if err != nil {
		s.fail(c, "link profile", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getSettings(c *gin.Context) {
	st, err := s.Settings.NotificationSettings(c.Request.Context())
	if err != nil {
		s.fail(c, "get settings", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) putSettings(c *gin.Context) {
	var req struct {
		OnQueueCall *bool `json:"onQueueCall" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st := checkin.Settings{OnQueueCall: *req.OnQueueCall}
	if err := s.Settings.Save(c.Request.Context(), st); err != nil {
		s.fail(c, "save settings", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// displayURL returns the public screen link an operator turns into a QR code.
func (s *Server) displayURL(c *gin.Context) {
	a, err := s.Registrations.Activity(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "display url", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": s.PublicBaseURL + "/queue/" + a.ID})
}
