package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/musicschool/ledger/internal/domain/shared"
	"github.com/musicschool/ledger/internal/infrastructure/logger"
	"github.com/musicschool/ledger/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader is the client supplied de-duplication key
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader marks a response served from the store
	IdempotentReplayHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 200
)

// bodyRecorder copies everything written to the response
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency answers a repeated POST carrying the same Idempotency-Key with
// the stored response of the first execution. Keys are scoped to the acting
// user and the request path. Responses with status 5xx are not remembered,
// so the client may retry them.
func Idempotency(store shared.IdempotencyStore, ttl time.Duration, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		clientKey := c.GetHeader(IdempotencyKeyHeader)
		if store == nil || c.Request.Method != http.MethodPost || clientKey == "" {
			c.Next()
			return
		}
		if len(clientKey) > maxIdempotencyKeyLength {
			AbortWithError(c, dto.ErrCodeBadRequest, "Idempotency-Key is too long")
			return
		}

		ctx := c.Request.Context()
		key := scopedKey(c, clientKey)

		stored, found, err := store.Lookup(ctx, key)
		if err != nil {
			// The store is an optimisation; run the command without it
			logger.WithLogger(ctx, log).Warn("idempotency lookup failed", zap.Error(err))
			c.Next()
			return
		}
		if found {
			replay(c, stored)
			return
		}

		reserved, err := store.Reserve(ctx, key, ttl)
		if err != nil {
			logger.WithLogger(ctx, log).Warn("idempotency reserve failed", zap.Error(err))
			c.Next()
			return
		}
		if !reserved {
			// Lost the race against a concurrent request with the same key
			if stored, found, err := store.Lookup(ctx, key); err == nil && found {
				replay(c, stored)
				return
			}
			AbortWithError(c, dto.ErrCodeIdempotencyInProgress, "A request with this Idempotency-Key is in progress")
			return
		}

		// Record the outcome even if the client went away; a panicking handler
		// releases the key
		bg := context.WithoutCancel(ctx)
		remembered := false
		defer func() {
			if remembered {
				return
			}
			if err := store.Forget(bg, key); err != nil {
				logger.WithLogger(ctx, log).Warn("idempotency forget failed", zap.Error(err))
			}
		}()

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			return
		}
		resp := shared.StoredResponse{Status: status, Body: recorder.body.Bytes()}
		if err := store.Complete(bg, key, resp, ttl); err != nil {
			logger.WithLogger(ctx, log).Warn("idempotency complete failed", zap.Error(err))
			return
		}
		remembered = true
	}
}

func scopedKey(c *gin.Context, clientKey string) string {
	user := "anonymous"
	if id, ok := GetUserID(c); ok {
		user = id.String()
	}
	return user + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + clientKey
}

func replay(c *gin.Context, stored *shared.StoredResponse) {
	if stored.Pending {
		AbortWithError(c, dto.ErrCodeIdempotencyInProgress, "A request with this Idempotency-Key is in progress")
		return
	}
	c.Header(IdempotentReplayHeader, "true")
	c.Data(stored.Status, "application/json; charset=utf-8", stored.Body)
	c.Abort()
}
