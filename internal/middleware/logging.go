// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"chatvault-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const redacted = "[REDACTED]"

// sensitivePrefixes 下的请求和响应体包含密码、token 或秘密明文，不写入日志。
var sensitivePrefixes = []string{"/auth", "/keys"}

func isSensitive(path string) bool {
	for _, p := range sensitivePrefixes {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录详细的请求和响应日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 记录请求开始时间
		startTime := time.Now()
		path := c.Request.URL.Path
		sensitive := isSensitive(path)

		// 读取并重新缓存请求体
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
			c.Request.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		// 使用自定义的 ResponseWriter 捕获响应
		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		// 处理请求
		c.Next()

		reqLog, respLog := string(requestBody), blw.body.String()
		if sensitive {
			if reqLog != "" {
				reqLog = redacted
			}
			if respLog != "" {
				respLog = redacted
			}
		}

		// 记录完整的请求和响应信息
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
			"requestBody", reqLog,
			"responseBody", respLog,
		)
	}
}
