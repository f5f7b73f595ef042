package endecode

import "math/big"

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var big36 = big.NewInt(36)

// Base36Encode 数字转 base36（0-9A-Z），负数带 '-' 前缀，0 返回 "0"
func Base36Encode(n *big.Int) string {
	if n.Sign() == 0 {
		return "0"
	}
	x := new(big.Int).Abs(n)
	mod := new(big.Int)
	var buf []byte
	for x.Sign() > 0 {
		x.DivMod(x, big36, mod)
		buf = append(buf, base36Alphabet[mod.Int64()])
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	if n.Sign() < 0 {
		return "-" + string(buf)
	}
	return string(buf)
}
