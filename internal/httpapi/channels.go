package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"eventqueue/internal/checkin"
)

func (s *Server) listChannels(c *gin.Context) {
	list, err := s.Registry.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "list channels", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": list})
}

func (s *Server) createChannel(c *gin.Context) {
	ch, err := s.Registry.Create(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "create channel", err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (s *Server) updateChannel(c *gin.Context) {
	var req struct {
		Field string  `json:"field" binding:"required,oneof=channelName servingCourse"`
		Value *string `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ch, err := s.Registry.UpdateField(c.Request.Context(), c.Param("channelId"), req.Field, req.Value)
	if err != nil {
		s.fail(c, "update channel", err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (s *Server) deleteChannel(c *gin.Context) {
	if _, err := s.Registry.Delete(c.Request.Context(), c.Param("channelId")); err != nil {
		s.fail(c, "delete channel", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) callNext(c *gin.Context) {
	res, err := s.Controller.CallNext(c.Request.Context(), c.Param("channelId"))
	s.respondCall(c, res, err)
}

func (s *Server) recall(c *gin.Context) {
	res, err := s.Controller.Recall(c.Request.Context(), c.Param("channelId"))
	s.respondCall(c, res, err)
}

func (s *Server) insertQueue(c *gin.Context) {
	var req struct {
		DisplayQueueNumber string `json:"displayQueueNumber"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.Controller.InsertQueue(c.Request.Context(), c.Param("channelId"), req.DisplayQueueNumber)
	s.respondCall(c, res, err)
}

func (s *Server) respondCall(c *gin.Context, res checkin.CallResult, err error) {
	if err != nil {
		s.fail(c, "call", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// channelStream pushes the full ordered channel list to the admin console.
func (s *Server) channelStream(c *gin.Context) {
	ctx := c.Request.Context()
	initial, updates, cancel, err := s.Registry.Subscribe(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, "channel stream", err)
		return
	}
	defer cancel()
	stream(s, c, "channels", initial, updates)
}

func (s *Server) displaySnapshot(c *gin.Context) {
	d, err := s.Projector.Snapshot(c.Request.Context(), c.Param("activityId"))
	if err != nil {
		s.fail(c, "display", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) displayStream(c *gin.Context) {
	initial, updates, err := s.Projector.Watch(c.Request.Context(), c.Param("activityId"))
	if err != nil {
		s.fail(c, "display stream", err)
		return
	}
	stream(s, c, "display", initial, updates)
}

// stream writes initial and then every update as server-sent events until
// the client leaves or updates closes.
func stream[T any](s *Server, c *gin.Context, event string, initial T, updates <-chan T) {
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(event, initial)
	c.Writer.Flush()

	ping := time.NewTicker(s.keepAlive)
	defer ping.Stop()
	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case v, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent(event, v)
			return true
		case <-ping.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
}
