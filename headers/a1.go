package headers

import (
	"hash/crc32"
	mrand "math/rand/v2"
	"strconv"
	"time"
)

const a1Charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomStr 大小写字母+数字的随机串
func randomStr(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = a1Charset[mrand.IntN(len(a1Charset))]
	}
	return string(b)
}

// MakeA1AndWebID 生成 cookie 中的 a1 和 webId
func MakeA1AndWebID(now time.Time) (a1, webID string) {
	return makeA1AndWebID(now.UnixMilli(), randomStr(30))
}

func makeA1AndWebID(ms int64, random30 string) (string, string) {
	d := strconv.FormatInt(ms, 16) + random30 + "5" + "0" + "000"
	g := d + strconv.FormatUint(uint64(crc32.ChecksumIEEE([]byte(d))), 10)
	if len(g) > 52 {
		g = g[:52]
	}
	return g, md5Hex(g)
}
