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
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rulego/hotscript/api/types"
	"github.com/rulego/hotscript/utils/fs"
)

// changeOps are the operations that change the last write time of a script
// or of its directory. Chmod is ignored.
const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// Watcher delivers one-shot change notifications for script directories.
// A single fsnotify watcher is shared by every instance of an engine; each
// subscribed directory is watched recursively, and sub directories created
// later are added as they appear.
//
// Watcher 为脚本目录提供一次性的变更通知，同一引擎的所有实例共享一个 fsnotify 监听器。
type Watcher struct {
	fw       *fsnotify.Watcher
	logger   types.Logger
	debounce time.Duration

	mu     sync.Mutex
	subs   map[uint64]*Subscription
	dirs   map[string]struct{}
	nextID uint64
	closed bool

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Subscription is an armed one-shot notification. It fires at most once;
// the subscriber must subscribe again to receive the next change.
type Subscription struct {
	w         *Watcher
	id        uint64
	root      string
	fn        func()
	cancelled atomic.Bool
}

// Cancel disarms the subscription. A firing already in its debounce delay is dropped.
func (s *Subscription) Cancel() {
	s.cancelled.Store(true)
	s.w.mu.Lock()
	delete(s.w.subs, s.id)
	s.w.mu.Unlock()
}

// Root returns the watched directory.
func (s *Subscription) Root() string {
	return s.root
}

// NewWatcher starts a watcher. debounce delays each firing so that a file
// written in several steps is reloaded once.
func NewWatcher(logger types.Logger, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = types.DefaultLogger()
	}
	w := &Watcher{
		fw:       fw,
		logger:   logger,
		debounce: debounce,
		subs:     make(map[uint64]*Subscription),
		dirs:     make(map[string]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Subscribe arms a notification for changes below root. fn runs once, on its
// own goroutine, after the first change. The watcher loop never waits for fn.
func (w *Watcher) Subscribe(root string, fn func()) (*Subscription, error) {
	root = filepath.Clean(root)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, types.ErrWatcherClosed
	}
	if err := w.addTreeLocked(root); err != nil {
		return nil, err
	}
	w.nextID++
	sub := &Subscription{w: w, id: w.nextID, root: root, fn: fn}
	w.subs[sub.id] = sub
	return sub, nil
}

// Len returns the number of armed subscriptions.
func (w *Watcher) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

// Close stops the watcher and drops every subscription.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.subs = make(map[uint64]*Subscription)
		w.mu.Unlock()
		close(w.stop)
		err = w.fw.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) addTreeLocked(root string) error {
	if _, ok := w.dirs[root]; ok {
		return nil
	}
	dirs, err := fs.Dirs(root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	for _, dir := range dirs {
		if _, ok := w.dirs[dir]; ok {
			continue
		}
		if err := w.fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = struct{}{}
	}
	return nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("watcher: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&changeOps == 0 {
		return
	}
	name := filepath.Clean(event.Name)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if event.Has(fsnotify.Create) && fs.IsDir(name) {
		if err := w.addTreeLocked(name); err != nil {
			w.logger.Printf("watcher: %v", err)
		}
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		for dir := range w.dirs {
			if within(name, dir) {
				delete(w.dirs, dir)
			}
		}
	}
	var fired []*Subscription
	for id, sub := range w.subs {
		if within(sub.root, name) {
			delete(w.subs, id)
			fired = append(fired, sub)
		}
	}
	w.mu.Unlock()

	for _, sub := range fired {
		go w.fire(sub)
	}
}

func (w *Watcher) fire(sub *Subscription) {
	if w.debounce > 0 {
		timer := time.NewTimer(w.debounce)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-w.stop:
			return
		}
	}
	if sub.cancelled.Load() {
		return
	}
	sub.fn()
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
