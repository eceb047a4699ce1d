package middleware

import (
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bharatinvest/config"
	"github.com/cppla/bharatinvest/utils"
)

const maintenanceRetryAfter = 10 * time.Minute

// Maintenance answers 503 while maintenance mode is on. Health checks and admin routes pass
// so operators can keep resolving requests.
func Maintenance() gin.HandlerFunc {
	cfg := config.Get()
	enabled := cfg.MaintenanceMode
	title, message := cfg.MaintenanceTitle, cfg.MaintenanceMessage

	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		path := c.Request.URL.Path
		if path == "/health" || strings.HasPrefix(path, "/api/v1/admin/") || strings.HasPrefix(path, "/api/v1/auth/login") {
			c.Next()
			return
		}
		respondMaintenance(c, title, message)
	}
}

// respondMaintenance writes an HTML page for browser requests, otherwise JSON.
func respondMaintenance(c *gin.Context, title, message string) {
	isAPI := strings.HasPrefix(c.Request.URL.Path, "/api/")
	wantsHTML := strings.Contains(strings.ToLower(c.GetHeader("Accept")), "text/html")
	if !isAPI && wantsHTML {
		c.Header("Retry-After", utils.RetryAfterSeconds(maintenanceRetryAfter))
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Status(http.StatusServiceUnavailable)
		page := "<!doctype html><html lang=\"en\"><head><meta charset=\"utf-8\"><meta name=\"viewport\" content=\"width=device-width, initial-scale=1\"><title>" +
			html.EscapeString(title) +
			"</title><style>body{font-family:-apple-system,BlinkMacSystemFont,Segoe UI,Roboto,Helvetica,Arial,sans-serif;background:#f7f7f9;margin:0} .card{max-width:560px;margin:16vh auto;background:#fff;border-radius:12px;box-shadow:0 2px 12px rgba(0,0,0,.08);padding:24px 20px;text-align:center} h1{font-size:22px;color:#b21f1f;margin:0 0 12px} p{color:#555;line-height:1.7;margin:0}</style></head><body><div class=\"card\"><h1>" +
			html.EscapeString(title) + "</h1><p>" + html.EscapeString(message) + "</p></div></body></html>"
		_, _ = c.Writer.Write([]byte(page))
		c.Abort()
		return
	}
	utils.Unavailable(c, 50300, message, maintenanceRetryAfter, gin.H{"title": title})
	c.Abort()
}
