/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package binding

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rulego/hotscript/api/types"
)

// Registry is the default registry for script runtimes.
var Registry = new(RuntimeRegistry)

// RuntimeRegistry maps a script file extension to the factory of its runtime.
type RuntimeRegistry struct {
	factories map[string]Factory
	sync.RWMutex
}

// Register adds a runtime factory for ext, e.g. ".lua".
func (r *RuntimeRegistry) Register(ext string, factory Factory) error {
	if factory == nil {
		return errors.New("factory can not be nil")
	}
	ext = normalizeExt(ext)
	r.Lock()
	defer r.Unlock()
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	if _, ok := r.factories[ext]; ok {
		return errors.New("the runtime already exists. ext=" + ext)
	}
	r.factories[ext] = factory
	return nil
}

// Unregister removes the runtime factory for ext.
func (r *RuntimeRegistry) Unregister(ext string) error {
	ext = normalizeExt(ext)
	r.Lock()
	defer r.Unlock()
	if _, ok := r.factories[ext]; ok {
		delete(r.factories, ext)
		return nil
	}
	return fmt.Errorf("runtime not found. ext=%s", ext)
}

// Has reports whether a runtime is registered for the extension of path.
func (r *RuntimeRegistry) Has(path string) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.factories[normalizeExt(filepath.Ext(path))]
	return ok
}

// Extensions returns the registered extensions in sorted order.
func (r *RuntimeRegistry) Extensions() []string {
	r.RLock()
	defer r.RUnlock()
	var exts []string
	for k := range r.factories {
		exts = append(exts, k)
	}
	sort.Strings(exts)
	return exts
}

// New builds a runtime for the script at path, chosen by its extension.
func (r *RuntimeRegistry) New(path string, opts Options) (Runtime, error) {
	ext := normalizeExt(filepath.Ext(path))
	r.RLock()
	factory, ok := r.factories[ext]
	r.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: ext=%s", types.ErrNoBinding, ext)
	}
	if opts.Logger == nil {
		opts.Logger = types.DefaultLogger()
	}
	return factory(opts)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
