// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package typeutil

import (
	"sync"

	"go.uber.org/atomic"
)

// ConcurrentSet 是并发安全的集合，用于在多个 goroutine 之间登记存活的会话。
type ConcurrentSet[T comparable] struct {
	inner sync.Map
	size  atomic.Int64
}

func NewConcurrentSet[T comparable]() *ConcurrentSet[T] {
	return &ConcurrentSet[T]{}
}

// Insert 插入元素，返回 false 表示元素已存在。
func (set *ConcurrentSet[T]) Insert(element T) bool {
	_, exist := set.inner.LoadOrStore(element, struct{}{})
	if !exist {
		set.size.Inc()
	}
	return !exist
}

// Contain 判断一个或多个元素是否都存在于集合中。
func (set *ConcurrentSet[T]) Contain(elements ...T) bool {
	for i := range elements {
		if _, ok := set.inner.Load(elements[i]); !ok {
			return false
		}
	}
	return true
}

// TryRemove 移除单个元素，元素不存在时返回 false。
func (set *ConcurrentSet[T]) TryRemove(element T) bool {
	_, exist := set.inner.LoadAndDelete(element)
	if exist {
		set.size.Dec()
	}
	return exist
}

// Len 返回集合当前元素个数。
func (set *ConcurrentSet[T]) Len() int {
	return int(set.size.Load())
}

func (set *ConcurrentSet[T]) Collect() []T {
	elements := make([]T, 0, set.Len())
	set.inner.Range(func(key, _ any) bool {
		elements = append(elements, key.(T))
		return true
	})
	return elements
}
