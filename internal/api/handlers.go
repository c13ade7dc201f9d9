package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"routerwatch/internal/accumulator"
	"routerwatch/internal/model"
	"routerwatch/internal/report"
	"routerwatch/internal/rollover"
	"routerwatch/internal/store"
)

const triggerTimeout = 30 * time.Second

type interfaceStatus struct {
	IfIndex   string           `json:"if_index"`
	Name      string           `json:"name"`
	Status    model.LinkStatus `json:"status"`
	In        uint64           `json:"in"`
	Out       uint64           `json:"out"`
	DownCount int              `json:"down_count"`
}

type deviceStatus struct {
	Device       string             `json:"device"`
	Address      string             `json:"address"`
	Reachability model.Reachability `json:"reachability"`
	Interfaces   []interfaceStatus  `json:"interfaces"`
}

func (s *Server) getHealth(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.health != nil {
		body["health"] = s.health.Health()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listStatus(c *gin.Context) {
	reach := store.LoadJSON(s.store, s.store.ReachabilityPath(), map[string]model.Reachability{})
	out := make([]deviceStatus, 0, s.registry.Len())
	for _, dev := range s.registry.Devices() {
		out = append(out, s.deviceStatus(dev, reach))
	}
	c.JSON(http.StatusOK, gin.H{"devices": out})
}

func (s *Server) getStatus(c *gin.Context) {
	dev, ok := s.registry.Get(c.Param("device"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
		return
	}
	reach := store.LoadJSON(s.store, s.store.ReachabilityPath(), map[string]model.Reachability{})
	c.JSON(http.StatusOK, s.deviceStatus(dev, reach))
}

func (s *Server) deviceStatus(dev model.DeviceConfig, reach map[string]model.Reachability) deviceStatus {
	runtime := store.LoadJSON(s.store, s.store.DevicePath(dev.Name), model.DeviceRuntime{})
	ds := deviceStatus{Device: dev.Name, Address: dev.Address, Reachability: reach[dev.Name]}
	for _, idx := range dev.InterfaceIndexes() {
		st, seen := runtime[idx]
		if !seen {
			st.Status = model.LinkUnknown
		}
		ds.Interfaces = append(ds.Interfaces, interfaceStatus{
			IfIndex:   idx,
			Name:      dev.Interfaces[idx],
			Status:    st.Status,
			In:        st.In,
			Out:       st.Out,
			DownCount: st.DownCount,
		})
	}
	return ds
}

// getDaily renders the running accumulator as if it were flushed now.
func (s *Server) getDaily(c *gin.Context) {
	state := store.LoadJSON(s.store, s.store.AccumulatorPath(), model.DailyAccumulator{})
	acc := accumulator.New(state, s.registry.Devices())
	c.JSON(http.StatusOK, gin.H{"date": acc.Date(), "devices": acc.Summaries()})
}

func (s *Server) getReport(c *gin.Context) {
	month, ok := parseMonth(c)
	if !ok {
		return
	}
	dev, found := s.registry.Get(c.Param("device"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
		return
	}
	recs, err := s.store.ReadSummaries(dev.Name, month)
	if errors.Is(err, store.ErrNoSummaries) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no daily summaries for month"})
		return
	}
	if err != nil {
		s.logger.Error("read daily summaries", "device", dev.Name, "month", month, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read daily summaries"})
		return
	}
	m := report.Aggregate(dev.Name, month, recs)
	c.JSON(http.StatusOK, gin.H{"report": m, "text": m.Text()})
}

func (s *Server) sendReport(c *gin.Context) {
	month, ok := parseMonth(c)
	if !ok {
		return
	}
	s.trigger(c, "report", func(ctx context.Context) error { return s.ctrl.TriggerReport(ctx, month) })
}

func (s *Server) rollover(c *gin.Context) {
	s.trigger(c, "rollover", s.ctrl.TriggerRollover)
}

func (s *Server) trigger(c *gin.Context, what string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), triggerTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.logger.Error("manual trigger failed", "trigger", what, "subject", c.GetString("subject"), "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("manual trigger done", "trigger", what, "subject", c.GetString("subject"))
	c.JSON(http.StatusAccepted, gin.H{"status": "done"})
}

func parseMonth(c *gin.Context) (string, bool) {
	month := c.Param("month")
	if _, err := time.Parse(rollover.MonthLayout, month); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month must be yyyy-mm"})
		return "", false
	}
	return month, true
}
