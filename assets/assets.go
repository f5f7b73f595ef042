package assets

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

//go:embed assets.json
var embedded []byte

// ErrInvalidAssets 常量资源不合法（字母表/校验表/版本号）
var ErrInvalidAssets = errors.New("invalid signing assets")

// Assets 签名算法依赖的固定常量，进程启动时加载一次，之后只读
type Assets struct {
	Alphabet        string      `json:"alphabet"`
	CaptchaAlphabet string      `json:"captcha_alphabet"`
	CaptchaPad      string      `json:"captcha_pad"`
	VersionX1       string      `json:"version_x1"`
	X2Template      string      `json:"x2_template"`
	SignSvn         string      `json:"sign_svn"`
	SignType        string      `json:"sign_type"`
	SignVersion     string      `json:"sign_version"`
	FingerprintX43  string      `json:"fingerprint_x43"`
	MrcTable        [256]uint32 `json:"-"`
}

// rawAssets mrc_table 先按切片解析，再校验长度
type rawAssets struct {
	Assets
	MrcTable []uint32 `json:"mrc_table"`
}

var (
	defaultOnce   sync.Once
	defaultAssets *Assets
)

// Default 返回内嵌的 assets.json
func Default() *Assets {
	defaultOnce.Do(func() {
		a, err := Parse(embedded)
		if err != nil {
			// 内嵌文件随代码发布，解析失败属于构建错误
			panic(fmt.Sprintf("assets: embedded assets.json: %v", err))
		}
		defaultAssets = a
	})
	return defaultAssets
}

// Load 从外部 JSON 文件加载常量
func Load(path string) (*Assets, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assets %s: %w", path, err)
	}
	a, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("load assets %s: %w", path, err)
	}
	return a, nil
}

// FromEnv XHS_ASSETS_FILE 非空时从文件加载，否则用内嵌默认值
func FromEnv() (*Assets, error) {
	if p := strings.TrimSpace(os.Getenv("XHS_ASSETS_FILE")); p != "" {
		return Load(p)
	}
	return Default(), nil
}

// Parse 解析并校验
func Parse(b []byte) (*Assets, error) {
	var raw rawAssets
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssets, err)
	}
	if len(raw.MrcTable) != 256 {
		return nil, fmt.Errorf("%w: mrc_table has %d entries, want 256", ErrInvalidAssets, len(raw.MrcTable))
	}
	a := raw.Assets
	copy(a.MrcTable[:], raw.MrcTable)
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Validate 检查字母表长度、唯一性及必填字符串
func (a *Assets) Validate() error {
	if err := checkAlphabet("alphabet", a.Alphabet); err != nil {
		return err
	}
	if strings.ContainsRune(a.Alphabet, '=') {
		return fmt.Errorf("%w: alphabet must not contain the pad symbol '='", ErrInvalidAssets)
	}
	if err := checkAlphabet("captcha_alphabet", a.CaptchaAlphabet); err != nil {
		return err
	}
	if len(a.CaptchaPad) != 1 {
		return fmt.Errorf("%w: captcha_pad must be a single symbol", ErrInvalidAssets)
	}
	for name, v := range map[string]string{
		"version_x1":   a.VersionX1,
		"x2_template":  a.X2Template,
		"sign_svn":     a.SignSvn,
		"sign_type":    a.SignType,
		"sign_version": a.SignVersion,
	} {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidAssets, name)
		}
	}
	return nil
}

func checkAlphabet(name, s string) error {
	if len(s) != 64 {
		return fmt.Errorf("%w: %s has %d symbols, want 64", ErrInvalidAssets, name, len(s))
	}
	seen := make(map[byte]bool, 64)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x80 {
			return fmt.Errorf("%w: %s contains non-ASCII symbol at %d", ErrInvalidAssets, name, i)
		}
		if seen[c] {
			return fmt.Errorf("%w: %s repeats symbol %q", ErrInvalidAssets, name, c)
		}
		seen[c] = true
	}
	return nil
}
