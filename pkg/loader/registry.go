package loader

import (
	"context"
	"fmt"
	"sort"
	"sync"

	apperr "github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/error"
)

// Registry 按数据类别管理加载器。
// 预热执行器通过它把缓存键解析回对应的数据源调用。
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]Loader
}

// NewRegistry 创建加载器注册表
func NewRegistry() *Registry {
	return &Registry{
		loaders: make(map[string]Loader),
	}
}

// Register 注册加载器，同类别重复注册时后者覆盖前者
func (r *Registry) Register(kind string, l Loader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[kind] = l
}

// Resolve 按类别查找加载器
func (r *Registry) Resolve(kind string) (Loader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, exists := r.loaders[kind]
	if !exists {
		return nil, apperr.NewError(ErrLoaderNotFound, fmt.Sprintf("no loader registered for kind: %s", kind))
	}
	return l, nil
}

// Load 解析类别并执行加载
func (r *Registry) Load(ctx context.Context, params Params) (interface{}, error) {
	l, err := r.Resolve(params.Kind())
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, params)
}

// Kinds 返回已注册的数据类别列表
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.loaders))
	for kind := range r.loaders {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
