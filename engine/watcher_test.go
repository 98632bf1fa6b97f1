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

package engine

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rulego/hotscript/api/types"
	"github.com/rulego/hotscript/test"
	"github.com/rulego/hotscript/test/assert"
)

func newTestWatcher(t *testing.T) *Watcher {
	w, err := NewWatcher(&test.RecordLogger{}, 10*time.Millisecond)
	assert.Nil(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestWatcherOneShot(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t)
	var fired atomic.Int32
	sub, err := w.Subscribe(dir, func() { fired.Add(1) })
	assert.Nil(t, err)
	assert.Equal(t, filepath.Clean(dir), sub.Root())
	assert.Equal(t, 1, w.Len())

	test.WriteScript(t, dir, "main.lua", "-- v1")
	assert.True(t, test.Eventually(2*time.Second, func() bool { return fired.Load() == 1 }))
	assert.Equal(t, 0, w.Len())

	test.WriteScript(t, dir, "main.lua", "-- v2")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatcherRecursive(t *testing.T) {
	dir := t.TempDir()
	assert.Nil(t, os.MkdirAll(filepath.Join(dir, "lib"), 0755))
	w := newTestWatcher(t)

	var fired atomic.Int32
	_, err := w.Subscribe(dir, func() { fired.Add(1) })
	assert.Nil(t, err)
	test.WriteScript(t, filepath.Join(dir, "lib"), "util.lua", "-- util")
	assert.True(t, test.Eventually(2*time.Second, func() bool { return fired.Load() == 1 }))

	// a directory created after subscribing is watched as well
	nested := filepath.Join(dir, "lib", "nested")
	_, err = w.Subscribe(dir, func() { fired.Add(1) })
	assert.Nil(t, err)
	assert.Nil(t, os.Mkdir(nested, 0755))
	assert.True(t, test.Eventually(2*time.Second, func() bool { return fired.Load() == 2 }))

	_, err = w.Subscribe(dir, func() { fired.Add(1) })
	assert.Nil(t, err)
	test.WriteScript(t, nested, "deep.lua", "-- deep")
	assert.True(t, test.Eventually(2*time.Second, func() bool { return fired.Load() == 3 }))
}

func TestWatcherCancel(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t)
	var fired atomic.Int32
	sub, err := w.Subscribe(dir, func() { fired.Add(1) })
	assert.Nil(t, err)
	sub.Cancel()
	assert.Equal(t, 0, w.Len())

	test.WriteScript(t, dir, "main.lua", "-- v1")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestWatcherErrors(t *testing.T) {
	w := newTestWatcher(t)
	_, err := w.Subscribe(filepath.Join(t.TempDir(), "missing"), func() {})
	assert.NotNil(t, err)

	assert.Nil(t, w.Close())
	_, err = w.Subscribe(t.TempDir(), func() {})
	assert.True(t, errors.Is(err, types.ErrWatcherClosed))
}

func TestWithin(t *testing.T) {
	root := filepath.Join("scripts", "app")
	assert.True(t, within(root, root))
	assert.True(t, within(root, filepath.Join(root, "main.lua")))
	assert.False(t, within(root, filepath.Join("scripts", "application", "main.lua")))
}
