package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paylink/reconciler/internal/infra/logger"
	apperrors "github.com/paylink/reconciler/internal/utils/errors"
)

const (
	// IdempotencyKeyHeader is the header for idempotency key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader marks a response served from the cache.
	IdempotentReplayHeader = "Idempotent-Replayed"

	idempotencyKeyPrefix  = "idempotency:"
	idempotencyLockTTL    = 30 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
)

// cachedResponse is what gets stored for a completed request.
type cachedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type capturingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// payment and refund creation. Requests without the header pass through.
// Server errors are not cached so the client can retry them.
func Idempotency(client goredis.UniversalClient, ttl time.Duration) gin.HandlerFunc {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if client == nil || key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		log := logger.FromContext(ctx, zap.NewNop())
		cacheKey := idempotencyCacheKey(c, key)

		if cached, err := loadResponse(ctx, client, cacheKey); err == nil && cached != nil {
			c.Header(IdempotentReplayHeader, "true")
			c.Data(cached.StatusCode, cached.ContentType, cached.Body)
			c.Abort()
			return
		} else if err != nil {
			log.Warn("idempotency lookup failed", zap.Error(err))
		}

		lockKey := cacheKey + ":lock"
		locked, err := client.SetNX(ctx, lockKey, "1", idempotencyLockTTL).Result()
		if err != nil {
			log.Warn("idempotency lock failed", zap.Error(err))
			c.Next()
			return
		}
		if !locked {
			abort(c, apperrors.Conflict("REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed"))
			return
		}
		defer client.Del(context.WithoutCancel(ctx), lockKey)

		writer := &capturingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		status := c.Writer.Status()
		if status >= 500 {
			return
		}
		resp := &cachedResponse{
			StatusCode:  status,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        writer.body.Bytes(),
		}
		if err := storeResponse(context.WithoutCancel(ctx), client, cacheKey, resp, ttl); err != nil {
			log.Warn("idempotency store failed", zap.Error(err))
		}
	}
}

func idempotencyCacheKey(c *gin.Context, key string) string {
	hash := sha256.Sum256([]byte(c.Request.Method + ":" + c.Request.URL.Path + ":" + key))
	return idempotencyKeyPrefix + hex.EncodeToString(hash[:])
}

func loadResponse(ctx context.Context, client goredis.UniversalClient, key string) (*cachedResponse, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp cachedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func storeResponse(ctx context.Context, client goredis.UniversalClient, key string, resp *cachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, ttl).Err()
}
