package shaderkit

import (
	"errors"
	"maps"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads shaders whose stage source files change on disk.
// Changes are only collected by the watcher goroutine; the owning goroutine
// applies them with ApplyPending, which reinitializes each changed shader
// with reloadSources set.
type Watcher struct {
	ctx *Context
	fs  *fsnotify.Watcher

	mu      sync.Mutex
	byPath  map[string][]*Shader
	dirs    map[string]int
	pending map[ShaderIndex]*Shader

	changed chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher starts a source watcher for c.
func (c *Context) NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		ctx:     c,
		fs:      fsw,
		byPath:  make(map[string][]*Shader),
		dirs:    make(map[string]int),
		pending: make(map[ShaderIndex]*Shader),
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Watch starts watching the source files of s. Directories are watched
// rather than files so that editors replacing a file are noticed.
func (w *Watcher) Watch(s *Shader) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range s.SourcePaths() {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if slices.Contains(w.byPath[abs], s) {
			continue
		}
		dir := filepath.Dir(abs)
		if w.dirs[dir] == 0 {
			if err := w.fs.Add(dir); err != nil {
				return err
			}
		}
		w.dirs[dir]++
		w.byPath[abs] = append(w.byPath[abs], s)
	}
	return nil
}

// Unwatch stops watching the source files of s.
func (w *Watcher) Unwatch(s *Shader) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for abs, shaders := range w.byPath {
		i := slices.Index(shaders, s)
		if i < 0 {
			continue
		}
		shaders = slices.Delete(shaders, i, i+1)
		if len(shaders) == 0 {
			delete(w.byPath, abs)
		} else {
			w.byPath[abs] = shaders
		}
		dir := filepath.Dir(abs)
		if w.dirs[dir]--; w.dirs[dir] <= 0 {
			delete(w.dirs, dir)
			_ = w.fs.Remove(dir)
		}
	}
	delete(w.pending, s.index)
}

// Changed is signalled when new changes are pending.
func (w *Watcher) Changed() <-chan struct{} { return w.changed }

// Pending returns the number of shaders waiting for reload.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// ApplyPending reinitializes every changed shader and returns how many
// were reloaded. Bases are reloaded before the shaders derived from them,
// otherwise in index order, and a base still building is flushed before
// its derived shader is reinitialized. Call it from the owning goroutine.
func (w *Watcher) ApplyPending() int {
	w.mu.Lock()
	batch := make([]*Shader, 0, len(w.pending))
	for _, idx := range slices.Sorted(maps.Keys(w.pending)) {
		batch = append(batch, w.pending[idx])
	}
	clear(w.pending)
	w.mu.Unlock()

	slices.SortStableFunc(batch, func(a, b *Shader) int {
		return baseDepth(a) - baseDepth(b)
	})
	for _, s := range batch {
		if base := s.Base(); base != nil && w.ctx.IsShaderQueued(base) {
			w.ctx.Flush()
		}
		Logger().Info("shaderkit: reloading shader", "shader", s.name)
		s.Initialize(true)
	}
	return len(batch)
}

// baseDepth is the length of the base chain of s.
func baseDepth(s *Shader) int {
	n := 0
	for b := s.Base(); b != nil; b = b.Base() {
		n++
	}
	return n
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case e, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.markChanged(e.Name)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				Logger().Warn("shaderkit: watcher error", "err", err)
				continue
			}
			Logger().Warn("shaderkit: watcher overflow, reloading all watched shaders")
			w.markAll()
		}
	}
}

func (w *Watcher) markChanged(name string) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return
	}
	w.mu.Lock()
	shaders := w.byPath[abs]
	for _, s := range shaders {
		w.pending[s.index] = s
	}
	w.mu.Unlock()

	if len(shaders) > 0 {
		w.signal()
	}
}

func (w *Watcher) markAll() {
	w.mu.Lock()
	for _, shaders := range w.byPath {
		for _, s := range shaders {
			w.pending[s.index] = s
		}
	}
	w.mu.Unlock()
	w.signal()
}

func (w *Watcher) signal() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}
