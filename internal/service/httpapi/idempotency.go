package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ledger/internal/service/idempotency"
)

const (
	// HeaderIdempotencyKey — ключ идемпотентности мутирующего запроса.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay выставляется на ответах, отданных из сохранённого результата.
	HeaderIdempotentReplay = "Idempotent-Replayed"
)

// bodyRecorder дублирует тело ответа в буфер для сохранения.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// idempotent выполняет мутацию не более одного раза на Idempotency-Key.
// Запросы без заголовка проходят как есть.
func (api *API) idempotent() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if api.guard == nil || key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			api.responder.BadRequest(c, fmt.Sprintf("read request body: %v", err))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		hash := idempotency.RequestHash(c.Request.Method+" "+c.Request.URL.Path, body)
		resp, replayed, err := api.guard.Execute(key, hash, func() idempotency.Response {
			recorder := &bodyRecorder{ResponseWriter: c.Writer}
			c.Writer = recorder
			c.Next()
			c.Writer = recorder.ResponseWriter
			return idempotency.Response{Status: c.Writer.Status(), Body: recorder.body.Bytes()}
		})
		if err != nil {
			api.responder.RespondError(c, err)
			c.Abort()
			return
		}
		if !replayed {
			return
		}

		contentType := "application/json; charset=utf-8"
		if resp.Status >= http.StatusBadRequest {
			contentType = ContentTypeProblemJSON
		}
		c.Header(HeaderIdempotentReplay, "true")
		c.Data(resp.Status, contentType, resp.Body)
		c.Abort()
	}
}
