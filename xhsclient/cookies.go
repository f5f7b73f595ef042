package xhsclient

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/emmansun/gmsm/sm3"
)

// ErrNoCookies 导出文件里没有任何 cookie
var ErrNoCookies = errors.New("no cookies")

// Cookie J2TEAMS Cookies 导出格式中的一条
type Cookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain,omitempty"`
	Path           string  `json:"path,omitempty"`
	ExpirationDate float64 `json:"expirationDate,omitempty"` // 秒，会话 cookie 没有
	HTTPOnly       bool    `json:"httpOnly,omitempty"`
	Secure         bool    `json:"secure,omitempty"`
	Session        bool    `json:"session,omitempty"`
}

// Cookies 按导出顺序保存
type Cookies []Cookie

type j2teamsExport struct {
	URL     string  `json:"url"`
	Cookies Cookies `json:"cookies"`
}

// LoadCookies 读取 J2TEAMS 导出的 JSON
func LoadCookies(r io.Reader) (Cookies, error) {
	var exp j2teamsExport
	if err := json.NewDecoder(r).Decode(&exp); err != nil {
		return nil, fmt.Errorf("decode cookies: %w", err)
	}
	if len(exp.Cookies) == 0 {
		return nil, ErrNoCookies
	}
	return exp.Cookies, nil
}

// LoadCookiesFile 从文件读取
func LoadCookiesFile(path string) (Cookies, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCookies(f)
}

// Get 取同名 cookie 的值，重复时以后出现的为准
func (c Cookies) Get(name string) string {
	v := ""
	for _, ck := range c {
		if ck.Name == name {
			v = ck.Value
		}
	}
	return v
}

// Map name -> value
func (c Cookies) Map() map[string]string {
	m := make(map[string]string, len(c))
	for _, ck := range c {
		m[ck.Name] = ck.Value
	}
	return m
}

// Expiry 最早的过期时间；全是会话 cookie 时 ok=false
func (c Cookies) Expiry() (time.Time, bool) {
	minExp := math.Inf(1)
	for _, ck := range c {
		if ck.ExpirationDate > 0 && ck.ExpirationDate < minExp {
			minExp = ck.ExpirationDate
		}
	}
	if math.IsInf(minExp, 1) {
		return time.Time{}, false
	}
	sec, frac := math.Modf(minExp)
	return time.Unix(int64(sec), int64(frac*1e9)), true
}

// Expired 任意一条 cookie 过期即视为整组失效
func (c Cookies) Expired(now time.Time) bool {
	exp, ok := c.Expiry()
	if !ok {
		return false
	}
	return now.After(exp)
}

// SigningFields 签名需要的 a1 / xsecappid / webBuild
func (c Cookies) SigningFields() (a1, platform, build string, err error) {
	a1, platform, build = c.Get("a1"), c.Get("xsecappid"), c.Get("webBuild")
	var missing []string
	if a1 == "" {
		missing = append(missing, "a1")
	}
	if platform == "" {
		missing = append(missing, "xsecappid")
	}
	if build == "" {
		missing = append(missing, "webBuild")
	}
	if len(missing) > 0 {
		err = fmt.Errorf("cookies missing %s", strings.Join(missing, ", "))
	}
	return
}

// HTTPCookies 转成请求可以直接带上的 cookie
func (c Cookies) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(c))
	for _, ck := range c.dedup() {
		out = append(out, &http.Cookie{Name: ck.Name, Value: ck.Value})
	}
	return out
}

// dedup 同名只保留最后一条，按名字排序
func (c Cookies) dedup() Cookies {
	m := c.Map()
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make(Cookies, 0, len(names))
	for _, n := range names {
		out = append(out, Cookie{Name: n, Value: m[n]})
	}
	return out
}

// CookieID 一组 cookie 的稳定标识：按名字排序后 name=value; 拼接取 sm3
func (c Cookies) CookieID() string {
	var sb strings.Builder
	for _, ck := range c.dedup() {
		sb.WriteString(ck.Name)
		sb.WriteByte('=')
		sb.WriteString(ck.Value)
		sb.WriteByte(';')
	}
	sum := sm3.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
