package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const DefaultDebounce = time.Second

// OnNewFile is called once a video file has stopped changing.
type OnNewFile func(path string)

// Watcher monitors a video directory tree for new files.
type Watcher struct {
	root     string
	callback OnNewFile
	watcher  *fsnotify.Watcher
	log      zerolog.Logger
	mu       sync.Mutex
	watched  map[string]struct{}
	debounce map[string]*time.Timer
	delay    time.Duration
	stop     chan struct{}
	done     chan struct{}
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.delay = d }
}

func New(root string, cb OnNewFile, logger zerolog.Logger, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     filepath.Clean(root),
		callback: cb,
		watcher:  fw,
		log:      logger,
		watched:  make(map[string]struct{}),
		debounce: make(map[string]*time.Timer),
		delay:    DefaultDebounce,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Start watches root and every directory below it.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		w.watcher.Close()
		return err
	}
	go w.eventLoop()
	w.mu.Lock()
	n := len(w.watched)
	w.mu.Unlock()
	w.log.Info().Str("root", w.root).Int("dirs", n).Msg("video directory watcher started")
	return nil
}

// Stop ends the event loop and drops pending debounced files.
func (w *Watcher) Stop() {
	close(w.stop)
	w.watcher.Close()
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.debounce {
		t.Stop()
		delete(w.debounce, p)
	}
}

func (w *Watcher) addRecursive(root string) error {
	if _, err := os.Stat(root); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.log.Warn().Err(err).Str("dir", path).Msg("cannot watch directory")
			return nil
		}
		w.watched[path] = struct{}{}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watcher error")
		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if isHidden(base) || strings.HasSuffix(base, ".tmp") || strings.HasSuffix(base, ".part") {
		return
	}

	// Writes restart the debounce so a file is reported once copying stops.
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) {
		info, err := os.Stat(event.Name)
		if err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.log.Warn().Err(err).Str("dir", event.Name).Msg("cannot watch new directory")
			}
			w.scanExisting(event.Name)
			return
		}
	}

	if !IsVideoFile(event.Name) {
		return
	}
	w.schedule(event.Name)
}

// scanExisting reports files that landed in a directory before it was watched.
func (w *Watcher) scanExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && IsVideoFile(path) && !isHidden(d.Name()) {
			w.schedule(path)
		}
		return nil
	})
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}
	w.debounce[path] = time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		delete(w.debounce, path)
		w.mu.Unlock()

		if _, err := os.Stat(path); err != nil {
			return
		}
		w.callback(path)
	})
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".m4v": true, ".wmv": true, ".flv": true, ".webm": true,
	".ts": true, ".m2ts": true, ".mpg": true, ".mpeg": true,
}

func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}
