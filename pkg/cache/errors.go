package cache

import (
	apperr "github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/error"
)

type CacheError struct {
	apperr.BaseError
}

const (
	// ErrCacheMiss 表示在缓存中未找到请求的条目（含已过期条目）。
	ErrCacheMiss apperr.ErrorCode = "CACHE_MISS"
	// ErrCacheClosed 表示缓存已关闭，无法继续服务。
	ErrCacheClosed apperr.ErrorCode = "CACHE_CLOSED"
	// ErrCacheBackend 表示远程缓存后端操作失败。
	ErrCacheBackend apperr.ErrorCode = "CACHE_BACKEND"
	// ErrCacheEncoding 表示缓存值编解码失败。
	ErrCacheEncoding apperr.ErrorCode = "CACHE_ENCODING"
)

func NewCacheError(code apperr.ErrorCode, message string) *CacheError {
	return &CacheError{
		BaseError: *apperr.NewError(code, message),
	}
}

// Unwrap 暴露内嵌的基础错误，保证 errors.As/Is 能按错误码匹配
func (e *CacheError) Unwrap() error {
	return &e.BaseError
}

// WrapCacheError 包装底层错误
func WrapCacheError(code apperr.ErrorCode, message string, cause error) *CacheError {
	return &CacheError{
		BaseError: *apperr.WrapError(code, message, cause),
	}
}

// IsMiss 判断错误是否为缓存未命中
func IsMiss(err error) bool {
	return apperr.IsCode(err, ErrCacheMiss)
}
