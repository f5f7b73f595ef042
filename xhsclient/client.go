package xhsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"xhs_sign/headers"
)

const (
	DefaultWebBase   = "https://www.xiaohongshu.com"
	DefaultAPIBase   = "https://edith.xiaohongshu.com"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/132.0.0.0 Safari/537.36"
)

var (
	// ErrUnexpectedStatus 非 200 响应
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrAPI 接口返回 success=false
	ErrAPI = errors.New("api error")
)

// Config 客户端配置，零值可用
type Config struct {
	Proxy     string        // 为空时直连
	Timeout   time.Duration // 默认 25s
	WebBase   string
	APIBase   string
	UserAgent string
	RPS       float64 // 每秒请求数上限，<=0 不限速
	Signer    *headers.Signer
}

// Client 带着一组 cookie 访问网页和 API，POST 请求自动签名
type Client struct {
	http    *http.Client
	signer  *headers.Signer
	limiter *rate.Limiter

	cookies  Cookies
	a1       string
	platform string
	build    string

	webBase string
	apiBase string
	ua      string

	now func() time.Time
}

// New 校验 cookie 中的签名字段后创建客户端
func New(cookies Cookies, cfg Config) (*Client, error) {
	a1, platform, build, err := cookies.SigningFields()
	if err != nil {
		return nil, err
	}
	c := &Client{
		http:     createClient(cfg.Proxy, cfg.Timeout),
		signer:   cfg.Signer,
		cookies:  cookies,
		a1:       a1,
		platform: platform,
		build:    build,
		webBase:  strings.TrimRight(cfg.WebBase, "/"),
		apiBase:  strings.TrimRight(cfg.APIBase, "/"),
		ua:       cfg.UserAgent,
		now:      time.Now,
	}
	if c.signer == nil {
		c.signer = headers.Default()
	}
	if c.webBase == "" {
		c.webBase = DefaultWebBase
	}
	if c.apiBase == "" {
		c.apiBase = DefaultAPIBase
	}
	if c.ua == "" {
		c.ua = DefaultUserAgent
	}
	if cfg.RPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return c, nil
}

// createClient 创建HTTP客户端
func createClient(proxy string, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       30,
		IdleConnTimeout:       60 * time.Second,
		TLSHandshakeTimeout:   8 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ForceAttemptHTTP2:     false,
	}
	if proxy != "" {
		if proxyURL, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			log.Printf("[xhs] bad proxy %q: %v", proxy, err)
		}
	}
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) setBrowserHeaders(req *http.Request) {
	req.Header.Set("user-agent", c.ua)
	req.Header.Set("accept-language", "zh-CN,zh;q=0.9,en;q=0.8")
	for _, ck := range c.cookies.HTTPCookies() {
		req.AddCookie(ck)
	}
}

// getPage 访问网页，返回 HTML
func (c *Client) getPage(ctx context.Context, pageURL string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	c.setBrowserHeaders(req)
	req.Header.Set("accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	log.Printf("[xhs] GET %s", pageURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: GET %s: %d", ErrUnexpectedStatus, pageURL, resp.StatusCode)
	}
	return string(body), nil
}

type apiResponse struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// postSigned 序列化 payload、签名后 POST 到 API，解出 data
func (c *Client) postSigned(ctx context.Context, apiPath string, payload any, started time.Time, out any) error {
	body, err := headers.MarshalPayload(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	now := c.now()
	h, err := c.signer.MakeHeaders(headers.SigningContext{
		URLPath:         apiPath + string(body),
		Payload:         string(body),
		TimestampMs:     strconv.FormatInt(now.UnixMilli(), 10),
		Platform:        c.platform,
		SessionIdentity: c.a1,
		BuildVersion:    c.build,
		SessionCounter:  headers.SessionCounter(now.Sub(started)),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+apiPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setBrowserHeaders(req)
	req.Header.Set("accept", "application/json, text/plain, */*")
	req.Header.Set("content-type", "application/json;charset=UTF-8")
	req.Header.Set("origin", c.webBase)
	req.Header.Set("referer", c.webBase+"/")
	h.Apply(req.Header)
	log.Printf("[xhs] POST %s payload=%s", apiPath, body)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: POST %s: %d", ErrUnexpectedStatus, apiPath, resp.StatusCode)
	}

	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return fmt.Errorf("decode %s: %w", apiPath, err)
	}
	if !ar.Success {
		return fmt.Errorf("%w: %s: code=%d msg=%s", ErrAPI, apiPath, ar.Code, ar.Msg)
	}
	if out == nil || len(ar.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(ar.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", apiPath, err)
	}
	return nil
}
