package headers

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// sessionTick sc 每 30 秒加一
const sessionTick = 30 * time.Second

var (
	// ErrMissingCredential a1 / xsecappid / webBuild 缺失，属于会话配置错误
	ErrMissingCredential = errors.New("missing credential field")
	// ErrInvalidTimestamp x-t 必须是十进制毫秒时间戳
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// SigningContext 单次请求的签名输入，每个请求新建一个，不复用
type SigningContext struct {
	URLPath         string // API 路径 + 序列化后的 query/body
	Payload         string // 已序列化的请求体，用于 content-length
	TimestampMs     string // x-t
	Platform        string // cookie xsecappid
	SessionIdentity string // cookie a1
	BuildVersion    string // cookie webBuild
	SessionCounter  int64  // sc，由调用方按会话时长维护
}

// SignatureTokens x-s / x-s-common
type SignatureTokens struct {
	XS       string
	XSCommon string
}

// Validate 在任何加密运算之前检查必填字段和时间戳
func (c SigningContext) Validate() error {
	return c.check(true)
}

func (c SigningContext) check(needBuild bool) error {
	var missing []string
	if strings.TrimSpace(c.SessionIdentity) == "" {
		missing = append(missing, "session_identity(a1)")
	}
	if strings.TrimSpace(c.Platform) == "" {
		missing = append(missing, "platform(xsecappid)")
	}
	if needBuild && strings.TrimSpace(c.BuildVersion) == "" {
		missing = append(missing, "build_version(webBuild)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	_, err := parseTimestamp(c.TimestampMs)
	return err
}

func parseTimestamp(ts string) (int64, error) {
	if ts == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	for i := 0; i < len(ts); i++ {
		if ts[i] < '0' || ts[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, ts)
		}
	}
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}
	return n, nil
}

// SessionCounter sc = round(会话已持续时长 / 30s)，.5 时取偶数
func SessionCounter(elapsed time.Duration) int64 {
	if elapsed <= 0 {
		return 0
	}
	return int64(math.RoundToEven(float64(elapsed) / float64(sessionTick)))
}
