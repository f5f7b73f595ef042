package headers

import (
	"net/http"
	"strconv"
)

// HeadersResult 返回生成的headers结果
type HeadersResult struct {
	XS            string
	XSCommon      string
	XT            string
	XB3TraceID    string
	XXrayTraceID  string
	ContentLength string
}

// MakeHeaders 生成一次请求需要的全部签名 header
func (s *Signer) MakeHeaders(c SigningContext) (*HeadersResult, error) {
	tokens, err := s.Sign(c)
	if err != nil {
		return nil, err
	}
	trace := MakeTraceIDs()
	return &HeadersResult{
		XS:            tokens.XS,
		XSCommon:      tokens.XSCommon,
		XT:            c.TimestampMs,
		XB3TraceID:    trace.B3TraceID,
		XXrayTraceID:  trace.XrayTraceID,
		ContentLength: strconv.Itoa(len(c.Payload)),
	}, nil
}

// Map header 名统一小写，与浏览器抓包一致
func (h *HeadersResult) Map() map[string]string {
	return map[string]string{
		"x-s":            h.XS,
		"x-s-common":     h.XSCommon,
		"x-t":            h.XT,
		"x-b3-traceid":   h.XB3TraceID,
		"x-xray-traceid": h.XXrayTraceID,
		"content-length": h.ContentLength,
	}
}

// Apply 写入请求头；content-length 由 http.Request.ContentLength 决定，这里不写
func (h *HeadersResult) Apply(header http.Header) {
	for k, v := range h.Map() {
		if k == "content-length" {
			continue
		}
		header.Set(k, v)
	}
}
