package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// StatusError 非 2xx 响应。调用方可据此区分“请求没发出去”和“对端明确拒绝”。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// DoJSON 发送 JSON 请求并解码 JSON 响应：
// - in 为 nil 时不带 body
// - out 为 nil 时丢弃响应 body
// - 出站请求打 client span 并注入 tracing header
// - token 非空时附加 Bearer 头
func DoJSON(ctx context.Context, client *http.Client, method, url, token string, in, out interface{}) error {
	if client == nil {
		client = http.DefaultClient
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	span, _ := opentracing.StartSpanFromContext(ctx, method+" "+url)
	defer span.Finish()
	ext.SpanKindRPCClient.Set(span)
	ext.HTTPMethod.Set(span, method)
	ext.HTTPUrl.Set(span, url)
	_ = opentracing.GlobalTracer().Inject(
		span.Context(),
		opentracing.HTTPHeaders,
		opentracing.HTTPHeadersCarrier(req.Header),
	)

	resp, err := client.Do(req)
	if err != nil {
		ext.Error.Set(span, true)
		return err
	}
	defer resp.Body.Close()

	ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		ext.Error.Set(span, true)
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
