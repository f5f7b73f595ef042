package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"xhs_sign/headers"
)

const (
	katURLPath = `/api/sns/web/v1/homefeed{"cursor_score":"","num":39,"refresh_type":1,"note_index":35,"unread_begin_note_id":"","unread_end_note_id":"","unread_note_count":0,"category":"homefeed_recommend","search_key":"","need_num":14,"image_formats":["jpg","webp","avif"],"need_filter_image":false}`
	katA1      = "1947369ced9g07o90xrwmhqzjfzpsgrlfc20baiaj50000474757"
	katXS      = "XYW_eyJzaWduU3ZuIjoiNTYiLCJzaWduVHlwZSI6IngyIiwiYXBwSWQiOiJ4aHMtcGMtd2ViIiwic2lnblZlcnNpb24iOiIxIiwicGF5bG9hZCI6IjA2NTkyNDhhMTdmMTk1OGY5YmM0MGI5MTcxZDgxZGQ4YzIxNjBhNTI4YzU5NDhjNTJlOGI2Y2ZjZDFiNmJhZmRhNjJiMjBjY2I4YzM1NjJkZTNlNzg3NmI1ZTI0YTcyZWIyY2U2MTg5ZGE2ZTY4MzRlZmRmMzIxY2M0MzEwZWE2NWI2NzAwMTEzMzIwMDZhMDc0ZTI4NWY2YTg0ZWE2NmIyYzBhZmE0MDJjNzZmZDUzZDYxOWRkYjJlMTA0ZmFmNWNmNGI1N2Q4YzhkNzMxZDMwNTNmMTlhNWM1YzI0Mjc4ZWUyZTAwMGQyY2RiNTYyOWE3ZDI2NjRmZTI1ZDA5ZjliYmQ0Yjg0ZjU0ODg3ZjYyNGZmM2RhNGVhOTJmMDIzMGI1OTAyYzU3M2JlMjM5M2NhOGQ0ZDhlNGFmNzBiYWNhYzQ1YjIwNTkyMDA1Y2NkMzRiMzY2N2RhZDk5N2M5ZmExMGVjYTg4ODU1OTNkMjFhZjJmYjI3M2I5NGM5YTdhZmYxMjU0YjY4YzVkNDU1NjZhYTIyNmUyNDIwNmJjNGRmIn0="
	katXSC     = "2UQAPsHC+aIjqArjwjHjNsQhPsHCH0rjNsQhPaHCH0c1PjhlHjIj2eHjwjQgynEDJ74AHjIj2ePjwjQhyoPTqBPT49pjHjIj2ecjwjH9N0Z1PsHVHdWMH0ijP/DF+AP9wn+S8eSdPe46w/mhqd4TyobCyf8Cqo+dqflfGAHIGfbkGniMPeZIPec7+eqM+UHVHdW9H0il+APhweLUw/rU+eZFNsQh+UHCHSY8pMRS2LkCGp4D4pLAndpQyfRk/Sz8yLleadkYp9zMpDYV4Mk/a/8QJf4EanS7ypSGcd4/pMbk/9St+BbH/gz0zFMF8eQnyLSk49S0Pfl1GflyJB+1/dmjP0zk/9SQ2rSk49S0zFGMGDqEybkea/8QyDrU/Sz32LEryBY+pBzT/pz3PLRon/p8JLFI/L4Q+LMLG7YyzB4hnD4z+bSCagYwyDQi/SzQ+bSCp/pwzBYx/SztJrRoa/Q8PSkxnDzByLETafYyJpQi/fktyLMxcfk8PDDFngk+PLExafTyprEV/dkdPFETa/byprDInpz02pkgagS8PSLU/pzd+pkoz/QypbDF/gkaJbkTLfM+2DShn/Q+PrMCzg4ypFLU/S4QPDECcg4+prpC/gkQ4FMrnfY+zBPInSzQ+rEgn/Q8pBqInS4bPDETagS82DQinfMbPrMrafkw2SkTnDzp2SkrngYOpMQ3nnktJrMLc/myJL8T/S4wJLEoa/bwPSrFngkiyFEC/gYyzrM7/SzwJLMLJBYwpFFlngkQPrMxGAzypMpEnSzm4FMoLgS8PSQk/Sz82LRgz/+yzrDU/fkaJpkLa/byzrrMnfkVypSTL/m8yfqInfkpPrRr8A+yySSE/D4yJLFULfYwzM8i/MztJLMragk+zFDl/Mzm2pSCp/++PDkV/nk++LFU/fYOzMrInDziJrEozfMw2DQknp4wybSCL/b8yDS7/Sz32LMrc/b8PDE3/gkayLMCn/QwPSQinDz3+LhU//pyJLph/L4nySSL8AzOzbLl/MzwyFMxzfYyyDkTnnkQPFFUa/pwzFFMnpzDybkTngY+ySLInnk8+bSCpfTwzbLl/fkyybSLagSwJppE/DzQ4FETafkwzMQTanhIOaHVHdWhH0ijPSpzybmmLBk7yDYQaBkQy0QSLr8HPBSxLo+HpDYDpFr3GLYeaemyyDEALnYccL4x49kHcLYxaniU8pZ7aemkySm6aLSN8nMMLBRQaLTSJgpcJFSQa9pT4pmdaLSN8nMMLBRQaLTSJgpcJFSQa9pT4pmdaLSN8nMMLBRQaLTSnfkwqMbiLrbgyd4xarSN8nMMLB4QaLTSGdpcJFSQa9pT4pm6aLSN8nQMLBRQJrTSJgpc8FSQa9pT4pm6aLSN8nMMLBRQaLTSJgpcJFSQa9pT4pm6aLSN8nMMLBRQaLTSJgpcJFSQa9pT4pm6aLSN8pkx/d+zybmmzBk7yDYQaBkQy0QSGMpHPBSxt7+ipLhIqfkwqMbit9pcyd4xL/mcNMrItURopL4pab8H8b4Bt7+HcFWIq04ccp4itURHzpZ6ar8c8n+x/d+zysTS/Bk7ySrIa0SbP/Y1tFGh8Mbpa04HyDEALnW38L4x49kz8D41JrrhGLYnaBzgzd4Aar+HyDYnaBzgzd4Yar+H8bzn2nq3zd4/pezwJ7kbqLQPcFTYab8H8b4+Lo+HcFYxab8H8b4+LBbHcFYxab8H8b4+LBkHcFY/pezH8rGRHjIj2eDjw0DE+AqhPAZF+UIj2erIH0iAKc=="
	adminPass  = "secret"
)

const cookieExport = `{"url":"https://www.xiaohongshu.com","cookies":[
{"name":"a1","value":"1947369ced9g07o90xrwmhqzjfzpsgrlfc20baiaj50000474757","expirationDate":1900000000},
{"name":"xsecappid","value":"xhs-pc-web","session":true},
{"name":"webBuild","value":"6.0.0","expirationDate":1890000000}]}`

type testServer struct {
	s   *Server
	h   http.Handler
	now time.Time
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *testServer {
	t.Helper()
	cfg := Config{
		SessionTTLSec:    3600,
		AdminPasswordMD5: md5HexLower(adminPass),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	ts := &testServer{now: time.UnixMilli(1738852912404)}
	sessions := newMemSessionStore(cfg.SessionTTL())
	sessions.now = func() time.Time { return ts.now }
	ts.s = NewServer(cfg, headers.Default(), sessions, newMemCookieStore())
	ts.s.now = func() time.Time { return ts.now }
	ts.h = ts.s.routes()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, hdr map[string]string) (int, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: bad json %q", method, path, rec.Body.String())
		}
	}
	return rec.Code, out
}

func signBody(t *testing.T, fields map[string]any) string {
	t.Helper()
	b, err := json.Marshal(fields)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func headerMap(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	h, ok := resp["headers"].(map[string]any)
	if !ok {
		t.Fatalf("no headers in %v", resp)
	}
	return h
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("request id = %q", rec.Header().Get("X-Request-ID"))
	}
}

func TestSignKnownAnswer(t *testing.T) {
	ts := newTestServer(t)
	code, resp := ts.do(t, http.MethodPost, "/sign", signBody(t, map[string]any{
		"url_path":     katURLPath,
		"payload":      `{"num":39}`,
		"timestamp_ms": "1738852912404",
		"platform":     "xhs-pc-web",
		"a1":           katA1,
		"web_build":    "6.0.0",
		"sc":           3,
	}), map[string]string{"X-Request-ID": "abc"})
	if code != http.StatusOK {
		t.Fatalf("code = %d %v", code, resp)
	}
	h := headerMap(t, resp)
	if h["x-s"] != katXS {
		t.Errorf("x-s = %v", h["x-s"])
	}
	if h["x-s-common"] != katXSC {
		t.Errorf("x-s-common = %v", h["x-s-common"])
	}
	if h["x-t"] != "1738852912404" || h["content-length"] != "10" {
		t.Errorf("headers = %v", h)
	}
	if resp["request_id"] != "abc" || resp["sc"] != float64(3) {
		t.Errorf("resp = %v", resp)
	}
}

func TestSignDefaultsTimestamp(t *testing.T) {
	ts := newTestServer(t)
	code, resp := ts.do(t, http.MethodPost, "/sign", signBody(t, map[string]any{
		"url_path": "/api/sns/web/v1/feed", "platform": "xhs-pc-web", "a1": katA1, "web_build": "6.0.0",
	}), nil)
	if code != http.StatusOK {
		t.Fatalf("code = %d %v", code, resp)
	}
	if h := headerMap(t, resp); h["x-t"] != "1738852912404" {
		t.Errorf("x-t = %v", h["x-t"])
	}
}

func TestSignErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"unknown field", `{"foo":1}`, http.StatusBadRequest},
		{"missing a1", `{"platform":"xhs-pc-web","web_build":"6.0.0"}`, http.StatusBadRequest},
		{"missing build", `{"platform":"xhs-pc-web","a1":"x"}`, http.StatusBadRequest},
		{"bad timestamp", `{"platform":"xhs-pc-web","a1":"x","web_build":"1","timestamp_ms":"12.5"}`, http.StatusBadRequest},
		{"unknown session", `{"platform":"xhs-pc-web","a1":"x","web_build":"1","session_id":"nope"}`, http.StatusNotFound},
		{"unknown cookies", `{"cookie_id":"nope"}`, http.StatusNotFound},
	}
	ts := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ts.do(t, http.MethodPost, "/sign", tt.body, nil)
			if code != tt.code {
				t.Fatalf("code = %d, want %d (%v)", code, tt.code, resp)
			}
			if resp["error"] == "" || resp["request_id"] == "" {
				t.Errorf("error envelope = %v", resp)
			}
		})
	}
}

func TestSessions(t *testing.T) {
	ts := newTestServer(t)
	code, resp := ts.do(t, http.MethodPost, "/sessions", "", nil)
	if code != http.StatusCreated {
		t.Fatalf("create = %d %v", code, resp)
	}
	id, _ := resp["id"].(string)
	if len(id) != 36 || resp["sc"] != float64(0) {
		t.Fatalf("session = %v", resp)
	}

	ts.now = ts.now.Add(95 * time.Second)
	code, resp = ts.do(t, http.MethodGet, "/sessions/"+id, "", nil)
	if code != http.StatusOK || resp["sc"] != float64(3) {
		t.Fatalf("get = %d %v", code, resp)
	}

	code, resp = ts.do(t, http.MethodPost, "/sign", signBody(t, map[string]any{
		"url_path": "/api/x", "platform": "xhs-pc-web", "a1": katA1, "web_build": "6.0.0", "session_id": id,
	}), nil)
	if code != http.StatusOK || resp["sc"] != float64(3) {
		t.Fatalf("sign = %d %v", code, resp)
	}
	common, err := headers.Default().ParseXSCommon(headerMap(t, resp)["x-s-common"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if common["x10"].(json.Number).String() != "3" {
		t.Errorf("x10 = %v", common["x10"])
	}

	if code, _ := ts.do(t, http.MethodDelete, "/sessions/"+id, "", nil); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	if code, _ := ts.do(t, http.MethodGet, "/sessions/"+id, "", nil); code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", code)
	}
}

func TestSessionExpires(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.SessionTTLSec = 60 })
	_, resp := ts.do(t, http.MethodPost, "/sessions", "", nil)
	id := resp["id"].(string)
	ts.now = ts.now.Add(61 * time.Second)
	if code, _ := ts.do(t, http.MethodGet, "/sessions/"+id, "", nil); code != http.StatusNotFound {
		t.Fatalf("expired session code = %d", code)
	}
}

func TestCookies(t *testing.T) {
	ts := newTestServer(t)
	auth := map[string]string{"X-Admin-Password": adminPass}

	if code, _ := ts.do(t, http.MethodPost, "/cookies", cookieExport, nil); code != http.StatusUnauthorized {
		t.Fatalf("import without password = %d", code)
	}
	if code, _ := ts.do(t, http.MethodPost, "/cookies", `{"cookies":[{"name":"a1","value":"x"}]}`, auth); code != http.StatusBadRequest {
		t.Fatalf("import incomplete = %d", code)
	}

	code, resp := ts.do(t, http.MethodPost, "/cookies", cookieExport, auth)
	if code != http.StatusOK {
		t.Fatalf("import = %d %v", code, resp)
	}
	id, _ := resp["id"].(string)
	if len(id) != 64 || resp["a1"] != katA1 || resp["web_build"] != "6.0.0" || resp["expires_at"] != float64(1890000000) {
		t.Fatalf("import resp = %v", resp)
	}

	code, resp = ts.do(t, http.MethodGet, "/cookies/"+id, "", nil)
	if code != http.StatusOK || resp["xsecappid"] != "xhs-pc-web" || resp["expired"] != false {
		t.Fatalf("get = %d %v", code, resp)
	}

	code, resp = ts.do(t, http.MethodGet, "/cookies", "", auth)
	if code != http.StatusOK || resp["count"] != float64(1) {
		t.Fatalf("list = %d %v", code, resp)
	}

	code, resp = ts.do(t, http.MethodPost, "/sign", signBody(t, map[string]any{
		"url_path": katURLPath, "timestamp_ms": "1738852912404", "cookie_id": id, "sc": 3,
	}), nil)
	if code != http.StatusOK {
		t.Fatalf("sign with cookies = %d %v", code, resp)
	}
	if h := headerMap(t, resp); h["x-s"] != katXS || h["x-s-common"] != katXSC {
		t.Errorf("cookie-backed signature differs")
	}

	code, resp = ts.do(t, http.MethodPost, "/sessions", `{"cookie_id":"`+id+`"}`, nil)
	if code != http.StatusCreated || resp["cookie_id"] != id {
		t.Fatalf("session with cookies = %d %v", code, resp)
	}

	ts.now = time.Unix(1890000001, 0)
	if code, _ := ts.do(t, http.MethodPost, "/sign", signBody(t, map[string]any{"cookie_id": id}), nil); code != http.StatusConflict {
		t.Fatalf("expired cookies code = %d", code)
	}

	if code, _ := ts.do(t, http.MethodDelete, "/cookies/"+id, "", auth); code != http.StatusNoContent {
		t.Fatalf("delete = %d", code)
	}
	if code, _ := ts.do(t, http.MethodGet, "/cookies/"+id, "", nil); code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", code)
	}
}

func TestAdminPasswordUnset(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.AdminPasswordMD5 = "" })
	code, _ := ts.do(t, http.MethodPost, "/cookies", cookieExport, map[string]string{"X-Admin-Password": ""})
	if code != http.StatusInternalServerError {
		t.Fatalf("code = %d", code)
	}
}

func TestVerify(t *testing.T) {
	ts := newTestServer(t)
	code, resp := ts.do(t, http.MethodPost, "/verify", signBody(t, map[string]any{"x_s": katXS, "x_s_common": katXSC}), nil)
	if code != http.StatusOK {
		t.Fatalf("verify = %d %v", code, resp)
	}
	xs := resp["x_s"].(map[string]any)
	if xs["x3"] != katA1 || xs["x4"] != "1738852912404" || xs["app_id"] != "xhs-pc-web" {
		t.Errorf("x_s = %v", xs)
	}
	common := resp["x_s_common"].(map[string]any)
	if common["x5"] != katA1 || common["x9"] != float64(997783047) {
		t.Errorf("x_s_common = %v", common)
	}

	for _, body := range []string{`{}`, `{"x_s":"XYW_!!"}`, `{"x_s":"` + katXS + `","x_s_common":"%%%"}`} {
		if code, _ := ts.do(t, http.MethodPost, "/verify", body, nil); code != http.StatusBadRequest {
			t.Errorf("verify(%s) = %d", body, code)
		}
	}
}

func TestTraceSearchIDAndA1(t *testing.T) {
	ts := newTestServer(t)
	code, resp := ts.do(t, http.MethodGet, "/trace", "", nil)
	b3, _ := resp["x-b3-traceid"].(string)
	if code != http.StatusOK || len(b3) != 16 || resp["x-xray-traceid"] != headers.MakeXrayTraceID(b3) {
		t.Fatalf("trace = %d %v", code, resp)
	}

	code, resp = ts.do(t, http.MethodGet, "/search_id?ts=1738852912404", "", nil)
	if sid, _ := resp["search_id"].(string); code != http.StatusOK || !strings.HasPrefix(sid, "2EDU43HCQ") {
		t.Fatalf("search_id = %d %v", code, resp)
	}
	if code, _ := ts.do(t, http.MethodGet, "/search_id?ts=abc", "", nil); code != http.StatusBadRequest {
		t.Errorf("bad ts = %d", code)
	}

	code, resp = ts.do(t, http.MethodGet, "/a1", "", nil)
	a1, _ := resp["a1"].(string)
	if code != http.StatusOK || len(a1) != 52 || !strings.HasPrefix(a1, "194dbb5cd14") || resp["webId"] != md5HexLower(a1) {
		t.Fatalf("a1 = %d %v", code, resp)
	}
}

func TestCaptchaSign(t *testing.T) {
	ts := newTestServer(t)
	code, resp := ts.do(t, http.MethodPost, "/captcha_sign",
		`{"timestamp_ms":"1700000000000","payload":{"secretId": "abc", "verifyType": "102"}}`, nil)
	if code != http.StatusOK || resp["sign"] != "OB9G0g4B0gFlslZvZgkJ1B4Bsl5COjcl12F+1lw6OgA3" {
		t.Fatalf("captcha = %d %v", code, resp)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 1
	})
	if code, _ := ts.do(t, http.MethodGet, "/trace", "", nil); code != http.StatusOK {
		t.Fatalf("first = %d", code)
	}
	if code, _ := ts.do(t, http.MethodGet, "/trace", "", nil); code != http.StatusTooManyRequests {
		t.Fatalf("second = %d", code)
	}
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz limited: %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/sign", signBody(t, map[string]any{
		"platform": "xhs-pc-web", "a1": katA1, "web_build": "6.0.0",
	}), nil)
	ts.do(t, http.MethodPost, "/sign", `{"platform":"xhs-pc-web"}`, nil)

	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"xhs_sign_signatures_total 1",
		`xhs_sign_failures_total{reason="missing_credential"} 1`,
		`xhs_sign_http_requests_total{code="200",route="/sign"} 1`,
		`xhs_sign_http_requests_total{code="400",route="/sign"} 1`,
		`xhs_sign_assets_info{sign_svn="56",sign_version="1",version_x1="4.2.1"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMemSessionStore(t *testing.T) {
	st := newMemSessionStore(time.Minute)
	now := time.Unix(1000, 0)
	st.now = func() time.Time { return now }
	ctx := context.Background()

	if err := st.Create(ctx, &Session{}); err == nil {
		t.Fatal("empty id accepted")
	}
	if err := st.Create(ctx, &Session{ID: "s1", StartedAt: now}); err != nil {
		t.Fatal(err)
	}
	got, err := st.Get(ctx, "s1")
	if err != nil || !got.StartedAt.Equal(now) {
		t.Fatalf("get = %v %v", got, err)
	}
	got.ID = "mutated"
	if again, _ := st.Get(ctx, "s1"); again.ID != "s1" {
		t.Errorf("store returned shared pointer")
	}
	now = now.Add(2 * time.Minute)
	if _, err := st.Get(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("API_PORT", "9090")
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("ADMIN_PASSWORD_MD5", "ABC")
	t.Setenv("RATE_LIMIT_RPS", "12.5")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != "0.0.0.0:9090" || cfg.SessionStore != "redis" || cfg.AdminPasswordMD5 != "abc" || cfg.RateLimitRPS != 12.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SessionTTL() != 2*time.Hour || cfg.DBName != "xhs_sign" {
		t.Errorf("defaults = %+v", cfg)
	}
	if !strings.Contains(cfg.MySQLDSN(), "@tcp(127.0.0.1:3306)/xhs_sign?parseTime=true") {
		t.Errorf("dsn = %s", cfg.MySQLDSN())
	}

	t.Setenv("API_PORT", "not-a-number")
	if _, err := loadConfig(); err == nil {
		t.Errorf("bad port accepted")
	}
}
