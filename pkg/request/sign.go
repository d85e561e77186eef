package request

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// 签名与去重相关的请求头
const (
	// HeaderSignature 投递体签名
	HeaderSignature = "X-Gateway-Signature"
	// HeaderTimestamp 签名时间戳（Unix 毫秒），接收方用于防重放
	HeaderTimestamp = "X-Gateway-Timestamp"
	// HeaderIdempotencyKey 幂等键，重试投递携带相同值供接收方去重
	HeaderIdempotencyKey = "X-Idempotency-Key"
)

// Sign 计算投递签名：HMAC-SHA256(key, timestamp + "." + body) 十六进制编码
func Sign(key, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify 校验投递签名，供接收端使用
func Verify(key, timestamp string, body []byte, signature string) bool {
	expected := Sign(key, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
