package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"xhs_sign/headers"
)

type Server struct {
	cfg      Config
	signer   *headers.Signer
	sessions SessionStore
	cookies  CookieStore
	metrics  *Metrics
	limiter  *rate.Limiter
	now      func() time.Time
}

func NewServer(cfg Config, signer *headers.Signer, sessions SessionStore, cookies CookieStore) *Server {
	s := &Server{
		cfg:      cfg,
		signer:   signer,
		sessions: sessions,
		cookies:  cookies,
		metrics:  NewMetrics(),
		now:      time.Now,
	}
	s.metrics.SetAssets(signer.Assets())
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = int(cfg.RateLimitRPS) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID, s.metrics.middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(api chi.Router) {
		api.Use(s.rateLimit)
		api.Post("/sign", s.handleSign)
		api.Post("/verify", s.handleVerify)
		api.Get("/trace", s.handleTrace)
		api.Get("/search_id", s.handleSearchID)
		api.Get("/a1", s.handleA1)
		api.Post("/captcha_sign", s.handleCaptchaSign)

		api.Route("/sessions", func(sr chi.Router) {
			sr.Post("/", s.handleCreateSession)
			sr.Get("/{id}", s.handleGetSession)
			sr.Delete("/{id}", s.handleDeleteSession)
		})
		s.routesAdmin(api)
	})
	return r
}

type ctxKey int

const requestIDKey ctxKey = iota

func newRequestID() string { return "req_" + uuid.NewString() }

// requestID 沿用调用方的 X-Request-ID，没有就生成一个
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// rateLimit 全进程共用一个令牌桶
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			s.metrics.limited.Inc()
			w.Header().Set("Retry-After", "1")
			writeError(w, r, http.StatusTooManyRequests, "rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type signRequest struct {
	URLPath     string `json:"url_path"`
	Payload     string `json:"payload"`
	TimestampMs string `json:"timestamp_ms"`
	Platform    string `json:"platform"`
	A1          string `json:"a1"`
	WebBuild    string `json:"web_build"`
	SessionID   string `json:"session_id"`
	CookieID    string `json:"cookie_id"`
	SC          *int64 `json:"sc"`
}

type signResponse struct {
	Headers   map[string]string `json:"headers"`
	SC        int64             `json:"sc"`
	RequestID string            `json:"request_id"`
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var req signRequest
	if err := readJSON(r, &req); err != nil {
		s.metrics.failures.WithLabelValues("bad_request").Inc()
		writeError(w, r, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	now := s.now()

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	// cookie_id：从已导入的 cookie 里补齐签名字段
	if req.CookieID != "" {
		row, err := s.cookies.GetCookies(ctx, req.CookieID)
		if err != nil {
			s.failStore(w, r, err, ErrCookiesNotFound)
			return
		}
		if row.Expired(now) {
			s.metrics.failures.WithLabelValues("cookies_expired").Inc()
			writeError(w, r, http.StatusConflict, "cookies expired")
			return
		}
		req.A1 = firstNonEmpty(req.A1, row.A1)
		req.Platform = firstNonEmpty(req.Platform, row.Platform)
		req.WebBuild = firstNonEmpty(req.WebBuild, row.WebBuild)
	}

	var sc int64
	switch {
	case req.SC != nil:
		sc = *req.SC
	case req.SessionID != "":
		sess, err := s.sessions.Get(ctx, req.SessionID)
		if err != nil {
			s.failStore(w, r, err, ErrSessionNotFound)
			return
		}
		sc = headers.SessionCounter(now.Sub(sess.StartedAt))
	}
	if req.TimestampMs == "" {
		req.TimestampMs = strconv.FormatInt(now.UnixMilli(), 10)
	}

	res, err := s.signer.MakeHeaders(headers.SigningContext{
		URLPath:         req.URLPath,
		Payload:         req.Payload,
		TimestampMs:     req.TimestampMs,
		Platform:        req.Platform,
		SessionIdentity: req.A1,
		BuildVersion:    req.WebBuild,
		SessionCounter:  sc,
	})
	if err != nil {
		s.failSign(w, r, err)
		return
	}
	s.metrics.signed.Inc()
	writeJSON(w, http.StatusOK, signResponse{Headers: res.Map(), SC: sc, RequestID: requestIDFrom(r.Context())})
}

// failSign 签名输入错误返回 400，其余按 500 处理
func (s *Server) failSign(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, headers.ErrMissingCredential):
		s.metrics.failures.WithLabelValues("missing_credential").Inc()
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, headers.ErrInvalidTimestamp):
		s.metrics.failures.WithLabelValues("invalid_timestamp").Inc()
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		s.metrics.failures.WithLabelValues("internal").Inc()
		log.Printf("[sign] %s: %v", requestIDFrom(r.Context()), err)
		writeError(w, r, http.StatusInternalServerError, "sign error")
	}
}

func (s *Server) failStore(w http.ResponseWriter, r *http.Request, err, notFound error) {
	if errors.Is(err, notFound) {
		s.metrics.failures.WithLabelValues("not_found").Inc()
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	s.metrics.failures.WithLabelValues("store").Inc()
	log.Printf("[store] %s: %v", requestIDFrom(r.Context()), err)
	writeError(w, r, http.StatusInternalServerError, "store error")
}

type verifyRequest struct {
	XS       string `json:"x_s"`
	XSCommon string `json:"x_s_common"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := readJSON(r, &req); err != nil || strings.TrimSpace(req.XS) == "" {
		writeError(w, r, http.StatusBadRequest, "x_s is required")
		return
	}
	fields, err := headers.ParseXS(req.XS)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	out := map[string]any{"x_s": fields}
	if req.XSCommon != "" {
		common, err := s.signer.ParseXSCommon(req.XSCommon)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "x_s_common: "+err.Error())
			return
		}
		out["x_s_common"] = common
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	ids := headers.MakeTraceIDs()
	writeJSON(w, http.StatusOK, map[string]string{
		"x-b3-traceid":   ids.B3TraceID,
		"x-xray-traceid": ids.XrayTraceID,
	})
}

func (s *Server) handleSearchID(w http.ResponseWriter, r *http.Request) {
	ts := s.now().UnixMilli()
	if v := strings.TrimSpace(r.URL.Query().Get("ts")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid ts")
			return
		}
		ts = n
	}
	writeJSON(w, http.StatusOK, map[string]string{"search_id": headers.MakeSearchID(ts)})
}

func (s *Server) handleA1(w http.ResponseWriter, r *http.Request) {
	a1, webID := headers.MakeA1AndWebID(s.now())
	writeJSON(w, http.StatusOK, map[string]string{"a1": a1, "webId": webID})
}

type captchaRequest struct {
	TimestampMs string          `json:"timestamp_ms"`
	Payload     json.RawMessage `json:"payload"`
}

func (s *Server) handleCaptchaSign(w http.ResponseWriter, r *http.Request) {
	var req captchaRequest
	if err := readJSON(r, &req); err != nil || len(req.Payload) == 0 {
		writeError(w, r, http.StatusBadRequest, "payload is required")
		return
	}
	if req.TimestampMs == "" {
		req.TimestampMs = strconv.FormatInt(s.now().UnixMilli(), 10)
	}
	// 网页端对 payload 做紧凑序列化，保持字段顺序，不转义非 ASCII
	var buf bytes.Buffer
	if err := json.Compact(&buf, req.Payload); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid payload")
		return
	}
	payload := buf.String()
	writeJSON(w, http.StatusOK, map[string]string{
		"sign":         s.signer.MakeCaptchaSign(req.TimestampMs, payload),
		"timestamp_ms": req.TimestampMs,
	})
}

type createSessionRequest struct {
	CookieID string `json:"cookie_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := readJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid json: "+err.Error())
			return
		}
	}
	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	if req.CookieID != "" {
		if _, err := s.cookies.GetCookies(ctx, req.CookieID); err != nil {
			s.failStore(w, r, err, ErrCookiesNotFound)
			return
		}
	}
	sess := &Session{ID: uuid.NewString(), StartedAt: s.now(), CookieID: req.CookieID}
	if err := s.sessions.Create(ctx, sess); err != nil {
		s.failStore(w, r, err, ErrSessionNotFound)
		return
	}
	s.metrics.sessions.Inc()
	writeJSON(w, http.StatusCreated, sessionResp(sess, 0))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	sess, err := s.sessions.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.failStore(w, r, err, ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sessionResp(sess, headers.SessionCounter(s.now().Sub(sess.StartedAt))))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	if err := s.sessions.Delete(ctx, chi.URLParam(r, "id")); err != nil {
		s.failStore(w, r, err, ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionResp(sess *Session, sc int64) map[string]any {
	out := map[string]any{
		"id":         sess.ID,
		"started_at": sess.StartedAt.UnixMilli(),
		"sc":         sc,
	}
	if sess.CookieID != "" {
		out["cookie_id"] = sess.CookieID
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg, "request_id": requestIDFrom(r.Context())})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Printf("write json error: %v", err)
	}
}
