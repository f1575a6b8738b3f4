// pkg/server/cache.go
package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const cacheHeader = "X-Cache"

type cachedResponse struct {
	contentType string
	body        []byte
}

// ResponseCache keeps successful responses for a fixed time
type ResponseCache struct {
	entries *expirable.LRU[string, cachedResponse]
}

// NewResponseCache creates a cache holding at most size responses for ttl
func NewResponseCache(size int, ttl time.Duration) *ResponseCache {
	return &ResponseCache{
		entries: expirable.NewLRU[string, cachedResponse](size, nil, ttl),
	}
}

// Len returns the number of cached responses
func (rc *ResponseCache) Len() int {
	return rc.entries.Len()
}

// Middleware serves cached 200 responses. With byQuery the query string is
// part of the key, with its parameters in sorted order.
func (rc *ResponseCache) Middleware(byQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.Request.URL.Path
		if byQuery {
			key += "?" + c.Request.URL.Query().Encode()
		}

		if entry, ok := rc.entries.Get(key); ok {
			c.Header(cacheHeader, "HIT")
			c.Data(http.StatusOK, entry.contentType, entry.body)
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Header(cacheHeader, "MISS")
		c.Next()

		if w.Status() == http.StatusOK && !c.IsAborted() {
			rc.entries.Add(key, cachedResponse{
				contentType: w.Header().Get("Content-Type"),
				body:        append([]byte(nil), w.body.Bytes()...),
			})
		}
	}
}

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
