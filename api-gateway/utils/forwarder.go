package utils

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AliakbarMohammadi/catring-313-sub001/api-gateway/middlewares"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/auth"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

type Forwarder struct {
	client *http.Client
	logger *zap.Logger
}

func NewForwarder(timeout time.Duration, logger *zap.Logger) *Forwarder {
	return &Forwarder{client: &http.Client{Timeout: timeout}, logger: logger}
}

// To forwards the request path unchanged to targetBase.
func (f *Forwarder) To(targetBase string) gin.HandlerFunc {
	targetBase = strings.TrimRight(targetBase, "/")
	return func(c *gin.Context) {
		f.forward(c, targetBase)
	}
}

func (f *Forwarder) forward(c *gin.Context, targetBase string) {
	log := logger.For(c, f.logger)

	targetURL := targetBase + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	log.Debug("Forwarding request",
		zap.String("method", c.Request.Method),
		zap.String("url", targetURL),
	)

	body := c.Request.Body
	if c.Request.ContentLength == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, body)
	if err != nil {
		log.Error("Failed to create forward request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create request"})
		return
	}

	// Copy original headers
	for k, v := range c.Request.Header {
		if hopByHop[strings.ToLower(k)] {
			continue
		}
		req.Header[k] = v
	}
	req.ContentLength = c.Request.ContentLength

	// Identity headers only ever come from a verified token
	req.Header.Del(auth.HeaderUserID)
	req.Header.Del(auth.HeaderUserRole)
	req.Header.Del("Authorization")
	if uid := c.GetString(middlewares.CtxUserID); uid != "" {
		req.Header.Set(auth.HeaderUserID, uid)
		req.Header.Set(auth.HeaderUserRole, c.GetString(middlewares.CtxRole))
	}
	if rid := c.GetString(logger.RequestIDKey); rid != "" {
		req.Header.Set("X-Request-ID", rid)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		log.Error("Failed to forward request", zap.String("url", targetURL), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "service unreachable"})
		return
	}
	defer resp.Body.Close()

	// Copy response headers (skip CORS and hop-by-hop headers from downstream)
	for k, v := range resp.Header {
		lowerKey := strings.ToLower(k)
		if strings.HasPrefix(lowerKey, "access-control-") || hopByHop[lowerKey] {
			continue
		}
		c.Header(k, strings.Join(v, ","))
	}

	// Set status AFTER all headers are set
	c.Status(resp.StatusCode)

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		log.Error("Failed to copy response body", zap.Error(err))
	}
}
