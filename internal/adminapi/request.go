package adminapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"

	"trading-core/internal/bus"
	"trading-core/internal/gateway"
)

// requestCtx bounds a route handler's bus round-trip to requestTimeout,
// derived from the incoming HTTP request's context.
func requestCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// requestJSON marshals req, issues a bus request/response against the
// gateway's API responder on topic, and decodes the reply into resp.
func requestJSON(ctx context.Context, b bus.Bus, topic string, req any, resp any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("adminapi: marshal request for %s: %w", topic, err)
	}

	env, err := bus.Request(ctx, b, topic, gateway.TopicResponse, payload, requestTimeout)
	if err != nil {
		return fmt.Errorf("adminapi: request %s: %w", topic, err)
	}

	if err := json.Unmarshal(env.Value, resp); err != nil {
		return fmt.Errorf("adminapi: decode response from %s: %w", topic, err)
	}
	return nil
}
