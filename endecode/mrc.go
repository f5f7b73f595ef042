package endecode

// mrcXor 前端在取反后额外异或的常量
const mrcXor uint32 = 0xEDB88320

// Mrc 前端的 CRC 变体校验值
// 累加器按 uint32 运算：JS 的 >>> 是无符号右移，有符号右移结果不同
// 每个码点只取低 8 位参与查表，结果按 JS 的 32 位有符号整数返回
func Mrc(table *[256]uint32, s string) int32 {
	acc := uint32(0xFFFFFFFF)
	for _, r := range s {
		acc = table[(acc^uint32(r))&0xFF] ^ (acc >> 8)
	}
	return int32(^acc ^ mrcXor)
}
