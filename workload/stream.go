package workload

import (
	"unsafe"

	"hwbench/config"
)

const wordSize = int(unsafe.Sizeof(uint64(0)))

// View b as 64-bit words without copying. A trailing partial word is
// dropped. b must be 8-byte aligned, which holds for mmap'ed and Go heap
// buffers of at least 8 bytes.
func AsWords(b []byte) []uint64 {
	n := len(b) / wordSize
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), n)
}

func StreamRead(buf []uint64) uint64 {
	var sum uint64
	for i := range buf {
		sum += buf[i]
	}
	return sum
}

// Fill buf with its own indices.
func StreamWrite(buf []uint64) {
	for i := range buf {
		buf[i] = uint64(i)
	}
}

// Copy min(len(dst), len(src)) words.
func StreamCopy(dst, src []uint64) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] = src[i]
	}
}

// Words between two strided reads: stride cache lines.
func StrideWords(stride int) int {
	if stride < 1 {
		stride = 1
	}
	step := stride * config.Conf.Workload.CACHE_LINE_SIZE / wordSize
	if step < 1 {
		step = 1
	}
	return step
}

// Sum one word out of every stride cache lines.
func StreamStrided(buf []uint64, stride int) uint64 {
	step := StrideWords(stride)
	var sum uint64
	for i := 0; i < len(buf); i += step {
		sum += buf[i]
	}
	return sum
}
