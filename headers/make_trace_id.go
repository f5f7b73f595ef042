package headers

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	mrand "math/rand/v2"

	"xhs_sign/endecode"
)

// searchIDRandMax random.uniform(0, 2147483646) 取整后的上界（不含）
const searchIDRandMax = 2147483646

// TraceIDs x-b3-traceid / x-xray-traceid
type TraceIDs struct {
	B3TraceID   string
	XrayTraceID string
}

// MakeB3TraceID 8 字节随机数的 16 位小写 hex，每次调用都不同
func MakeB3TraceID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic("headers: crypto/rand: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// MakeXrayTraceID x-b3-traceid 的 md5
func MakeXrayTraceID(b3 string) string {
	return md5Hex(b3)
}

// MakeTraceIDs 生成一组 trace id
func MakeTraceIDs() TraceIDs {
	b3 := MakeB3TraceID()
	return TraceIDs{B3TraceID: b3, XrayTraceID: MakeXrayTraceID(b3)}
}

// MakeSearchID 搜索接口的 search_id：(ts << 64) + 随机数，转 base36
func MakeSearchID(timestampMs int64) string {
	return searchID(timestampMs, mrand.Int64N(searchIDRandMax))
}

func searchID(timestampMs, r int64) string {
	n := new(big.Int).Lsh(big.NewInt(timestampMs), 64)
	n.Add(n, big.NewInt(r))
	return endecode.Base36Encode(n)
}
