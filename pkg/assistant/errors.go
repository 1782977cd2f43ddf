package assistant

import (
	"errors"
	"fmt"
	"net/http"
)

// Reason 是托管助手 API 错误的结构化分类。
type Reason string

const (
	// ReasonTermsNotAccepted 账号未接受服务条款，助手功能整体不可用。
	ReasonTermsNotAccepted Reason = "terms_not_accepted"
	// ReasonNotFound 目标助手或文件不存在。
	ReasonNotFound Reason = "not_found"
	// ReasonRateLimited 请求被限流。
	ReasonRateLimited Reason = "rate_limited"
	// ReasonUnknown 其余未分类错误。
	ReasonUnknown Reason = "unknown"
)

// 服务端在错误体中返回的机读错误码。
const (
	codeTermsNotAccepted = "TERMS_OF_SERVICE_NOT_ACCEPTED"
	codeNotFound         = "NOT_FOUND"
)

// APIError 表示托管助手服务返回的一次失败响应。
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("assistant api error [%d %s]: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("assistant api error [%d]: %s", e.StatusCode, e.Message)
}

// Reason 将状态码与错误码映射为结构化分类。
func (e *APIError) Reason() Reason {
	switch {
	case e.Code == codeTermsNotAccepted:
		return ReasonTermsNotAccepted
	case e.Code == codeNotFound, e.StatusCode == http.StatusNotFound:
		return ReasonNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ReasonRateLimited
	}
	return ReasonUnknown
}

// ReasonOf 提取错误链中 APIError 的分类，非 API 错误返回 ReasonUnknown。
func ReasonOf(err error) Reason {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Reason()
	}
	return ReasonUnknown
}

// IsNotFound 判断错误是否为资源不存在。
func IsNotFound(err error) bool {
	return ReasonOf(err) == ReasonNotFound
}
