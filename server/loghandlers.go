package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// selectEncoding picks gzip or deflate from an Accept-Encoding value,
// ignoring quality weights. "" means identity.
func selectEncoding(acceptEncoding string) string {
	accepted := make(map[string]bool)
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, _, _ := strings.Cut(part, ";")
		accepted[strings.ToLower(strings.TrimSpace(name))] = true
	}

	switch {
	case accepted["gzip"]:
		return "gzip"
	case accepted["deflate"]:
		return "deflate"
	}
	return ""
}

// writeCompressed writes data with the given encoding, "" writes it as is
func writeCompressed(w io.Writer, encoding string, data []byte) error {
	var cw io.WriteCloser
	switch encoding {
	case "gzip":
		cw = gzip.NewWriter(w)
	case "deflate":
		fw, err := flate.NewWriter(w, flate.DefaultCompression)
		if err != nil {
			return err
		}
		cw = fw
	default:
		_, err := w.Write(data)
		return err
	}

	if _, err := cw.Write(data); err != nil {
		cw.Close()
		return err
	}
	return cw.Close()
}

func (s *Server) sendLogsHandler(c *gin.Context) {
	c.Header("Content-Type", "text/plain")
	history := s.logger.GetHistory()

	encoding := selectEncoding(c.GetHeader("Accept-Encoding"))
	if encoding != "" {
		c.Header("Content-Encoding", encoding)
		c.Header("Vary", "Accept-Encoding")
	}

	c.Status(http.StatusOK)
	if err := writeCompressed(c.Writer, encoding, history); err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
}

// streamLogsHandler writes the history, unless ?no-history is set, then
// every new log line until the client or the server goes away
func (s *Server) streamLogsHandler(c *gin.Context) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Accel-Buffering", "no")

	if _, noHistory := c.GetQuery("no-history"); !noHistory {
		c.Writer.Write(s.logger.GetHistory())
	}
	c.Writer.Flush()

	lines := make(chan []byte, 32)
	unsubscribe := s.logger.OnLogData(func(data []byte) {
		select {
		case lines <- data:
		default:
			// slow reader, drop the line
		}
	})
	defer unsubscribe()

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case data := <-lines:
			w.Write(data)
			return true
		case <-done:
			return false
		case <-s.shutdownCtx.Done():
			return false
		}
	})
}
