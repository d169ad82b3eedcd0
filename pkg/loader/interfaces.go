package loader

import (
	"context"

	apperr "github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/error"
)

// 数据加载相关错误码
const (
	ErrLoaderNotFound apperr.ErrorCode = "LOADER_NOT_FOUND"
	ErrLoadFailed     apperr.ErrorCode = "LOAD_FAILED"
	ErrInvalidParams  apperr.ErrorCode = "LOADER_INVALID_PARAMS"
)

// Params 加载参数。每种数据类别对应一种具体参数类型，
// 加载器自行断言为期望的类型。
type Params interface {
	// Kind 返回参数对应的数据类别，同时也是注册表里的加载器名称
	Kind() string

	// CacheKey 返回该参数对应的完整缓存键
	CacheKey() string
}

// Loader 从数据源加载一份可缓存的数据。
// 实现必须尊重 ctx 取消，且可被多协程并发调用。
type Loader interface {
	Load(ctx context.Context, params Params) (interface{}, error)
}

// LoaderFunc 函数式加载器适配
type LoaderFunc func(ctx context.Context, params Params) (interface{}, error)

// Load 实现 Loader 接口
func (f LoaderFunc) Load(ctx context.Context, params Params) (interface{}, error) {
	return f(ctx, params)
}
