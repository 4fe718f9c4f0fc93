package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/zaqqye/term_gateway_v1/internal/models"
	"github.com/zaqqye/term_gateway_v1/internal/ws"
)

func Register(r *gin.Engine, gw *ws.Gateway, db *gorm.DB, reg *prometheus.Registry) {
	r.GET("/ws", ws.Handler(gw))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	{
		// Read-only snapshots for operator tooling; mutations go over
		// the websocket command protocol.
		api.GET("/terminals", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"terminals": gw.Snapshot()})
		})
		api.GET("/logs", listLogs(db))
	}
}

func listLogs(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit <= 0 || limit > 1000 {
			limit = 100
		}
		var rows []models.AttendanceLog
		q := db.Order("id DESC").Limit(limit)
		if sn := c.Query("sn"); sn != "" {
			q = q.Where("serial_number = ?", sn)
		}
		if err := q.Find(&rows).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": rows})
	}
}
