package httpserver

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/openzipkin/zipkin-go/idgenerator"
	"go.uber.org/zap"
)

const (
	traceKey    = "trace_id"
	traceHeader = "X-Trace-Id"
)

func traceID(c *fiber.Ctx) string {
	id, _ := c.Locals(traceKey).(string)
	return id
}

// AccessLog tags the request with a trace id and logs it once the response
// is written. Bodies are never logged.
func AccessLog(log *zap.Logger) fiber.Handler {
	gen := idgenerator.NewRandom128()
	return func(c *fiber.Ctx) error {
		start := time.Now()
		trace := gen.TraceID().String()
		c.Locals(traceKey, trace)
		c.Set(traceHeader, trace)

		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		level := zap.InfoLevel
		switch {
		case status >= fiber.StatusInternalServerError:
			level = zap.ErrorLevel
		case status >= fiber.StatusBadRequest:
			level = zap.WarnLevel
		}
		log.Log(level, "http",
			zap.String("trace_id", trace),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", c.IP()),
		)
		return nil
	}
}

// Recover turns a handler panic into an internal error.
func Recover(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", c.Path()),
					zap.String("trace_id", traceID(c)),
				)
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return c.Next()
	}
}
