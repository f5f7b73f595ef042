package main

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"xhs_sign/xhsclient"
)

const maxCookieUpload = 4 << 20

func md5HexLower(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func (s *Server) routesAdmin(r chi.Router) {
	r.Route("/cookies", func(cr chi.Router) {
		cr.Get("/{id}", s.handleGetCookies)
		cr.Group(func(admin chi.Router) {
			admin.Use(s.adminOnly)
			admin.Post("/", s.handleImportCookies)
			admin.Get("/", s.handleListCookies)
			admin.Delete("/{id}", s.handleDeleteCookies)
		})
	})
}

// adminAuth 密码取 X-Admin-Password 头，兼容表单 password 字段
func (s *Server) adminAuth(r *http.Request) bool {
	if s.cfg.AdminPasswordMD5 == "" {
		return false
	}
	pass := r.Header.Get("X-Admin-Password")
	if pass == "" {
		pass = r.URL.Query().Get("password")
	}
	return md5HexLower(pass) == s.cfg.AdminPasswordMD5
}

func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminPasswordMD5 == "" {
			writeError(w, r, http.StatusInternalServerError, "ADMIN_PASSWORD_MD5 not set")
			return
		}
		if !s.adminAuth(r) {
			writeError(w, r, http.StatusUnauthorized, "invalid password")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// readCookieUpload JSON 请求体直接读；表单优先文件 cookies_file，其次文本 cookies
func readCookieUpload(r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" || ct == "application/x-www-form-urlencoded" {
		if err := r.ParseMultipartForm(maxCookieUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return "", err
		}
		if f, _, err := r.FormFile("cookies_file"); err == nil {
			defer f.Close()
			b, err := io.ReadAll(io.LimitReader(f, maxCookieUpload))
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
		return strings.TrimSpace(r.FormValue("cookies")), nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxCookieUpload))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *Server) handleImportCookies(w http.ResponseWriter, r *http.Request) {
	raw, err := readCookieUpload(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "read cookies failed: "+err.Error())
		return
	}
	if raw == "" {
		writeError(w, r, http.StatusBadRequest, "missing cookies")
		return
	}
	cookies, err := xhsclient.LoadCookies(strings.NewReader(raw))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a1, platform, build, err := cookies.SigningFields()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	row := &CookieRow{
		ID:       cookies.CookieID(),
		A1:       a1,
		Platform: platform,
		WebBuild: build,
		Raw:      raw,
	}
	if exp, ok := cookies.Expiry(); ok {
		row.ExpiresAt = &exp
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	if err := s.cookies.UpsertCookies(ctx, row); err != nil {
		s.failStore(w, r, err, ErrCookiesNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cookieResp(row, s))
}

func (s *Server) handleGetCookies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	row, err := s.cookies.GetCookies(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.failStore(w, r, err, ErrCookiesNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cookieResp(row, s))
}

func (s *Server) handleListCookies(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	rows, err := s.cookies.ListCookies(ctx, limit)
	if err != nil {
		s.failStore(w, r, err, ErrCookiesNotFound)
		return
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, cookieResp(row, s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(out), "cookies": out})
}

func (s *Server) handleDeleteCookies(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()
	if err := s.cookies.DeleteCookies(ctx, chi.URLParam(r, "id")); err != nil {
		s.failStore(w, r, err, ErrCookiesNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func cookieResp(row *CookieRow, s *Server) map[string]any {
	out := map[string]any{
		"id":        row.ID,
		"a1":        row.A1,
		"xsecappid": row.Platform,
		"web_build": row.WebBuild,
		"expired":   row.Expired(s.now()),
	}
	if row.ExpiresAt != nil {
		out["expires_at"] = row.ExpiresAt.Unix()
	}
	return out
}
