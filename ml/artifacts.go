package ml

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var ErrArtifactMissing = errors.New("artifact missing")

// Artifacts holds the fitted pipeline and model for the process lifetime.
// Both are read-only after load; the optional watcher swaps them as a pair
// under the lock so in-flight predictions never see a mixed generation.
type Artifacts struct {
	mu       sync.RWMutex
	pipeline *FeaturePipeline
	model    *Ensemble

	pipelinePath string
	modelPath    string
	loadedAt     time.Time
	generation   int64
	reloads      int64
	lastError    string

	onReload []func()

	watcher *fsnotify.Watcher
	done    chan struct{}
}

type ArtifactStatus struct {
	PipelinePath string    `json:"pipeline_path"`
	ModelPath    string    `json:"model_path"`
	FeatureCount int       `json:"feature_count"`
	TreeCount    int       `json:"tree_count"`
	LoadedAt     time.Time `json:"loaded_at"`
	Reloads      int64     `json:"reloads"`
	LastError    string    `json:"last_error,omitempty"`
	Watching     bool      `json:"watching"`
}

// LoadArtifacts reads both artifact files. A missing or undecodable file is
// ErrArtifactMissing: the service cannot run without both and callers are
// expected to halt startup.
func LoadArtifacts(pipelinePath, modelPath string) (*Artifacts, error) {
	a := &Artifacts{
		pipelinePath: pipelinePath,
		modelPath:    modelPath,
		done:         make(chan struct{}),
	}
	if err := a.load(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewArtifacts wraps already-decoded objects. Used by tests and tools that
// build artifacts in memory.
func NewArtifacts(pipeline *FeaturePipeline, model *Ensemble) *Artifacts {
	return &Artifacts{
		pipeline:   pipeline,
		model:      model,
		loadedAt:   time.Now(),
		generation: 1,
		done:       make(chan struct{}),
	}
}

func (a *Artifacts) load() error {
	pipeline := &FeaturePipeline{}
	if err := pipeline.Load(a.pipelinePath); err != nil {
		return fmt.Errorf("%w: pipeline %s: %v", ErrArtifactMissing, a.pipelinePath, err)
	}
	model := &Ensemble{}
	if err := model.Load(a.modelPath); err != nil {
		return fmt.Errorf("%w: model %s: %v", ErrArtifactMissing, a.modelPath, err)
	}

	a.mu.Lock()
	first := a.pipeline == nil
	a.pipeline = pipeline
	a.model = model
	a.loadedAt = time.Now()
	a.generation++
	a.lastError = ""
	if !first {
		a.reloads++
	}
	callbacks := append([]func(){}, a.onReload...)
	a.mu.Unlock()

	if !first {
		for _, fn := range callbacks {
			fn()
		}
	}
	return nil
}

func (a *Artifacts) Pipeline() *FeaturePipeline {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pipeline
}

func (a *Artifacts) Model() *Ensemble {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// Snapshot returns the pipeline and model from a single generation. One
// inference must transform and predict against the same pair, never a mix
// straddling a reload.
func (a *Artifacts) Snapshot() (*FeaturePipeline, *Ensemble, int64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pipeline, a.model, a.generation
}

// Generation counts successful loads, starting at 1.
func (a *Artifacts) Generation() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.generation
}

// OnReload registers a callback invoked after a successful artifact swap.
func (a *Artifacts) OnReload(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onReload = append(a.onReload, fn)
}

func (a *Artifacts) Status() ArtifactStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ArtifactStatus{
		PipelinePath: a.pipelinePath,
		ModelPath:    a.modelPath,
		FeatureCount: a.pipeline.FeatureCount(),
		TreeCount:    a.model.TreeCount(),
		LoadedAt:     a.loadedAt,
		Reloads:      a.reloads,
		LastError:    a.lastError,
		Watching:     a.watcher != nil,
	}
}

// Watch reloads the artifact pair whenever either backing file changes.
// Reload failures keep the previous generation serving.
func (a *Artifacts) Watch() error {
	if a.pipelinePath == "" || a.modelPath == "" {
		return errors.New("artifacts not file-backed")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directories: editors and deploy scripts replace files
	// rather than writing them in place.
	dirs := map[string]bool{
		filepath.Dir(a.pipelinePath): true,
		filepath.Dir(a.modelPath):    true,
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return err
		}
	}

	a.mu.Lock()
	a.watcher = watcher
	a.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !a.isArtifactPath(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := a.load(); err != nil {
					a.mu.Lock()
					a.lastError = err.Error()
					a.mu.Unlock()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-a.done:
				return
			}
		}
	}()
	return nil
}

func (a *Artifacts) isArtifactPath(name string) bool {
	cleaned := filepath.Clean(name)
	return cleaned == filepath.Clean(a.pipelinePath) || cleaned == filepath.Clean(a.modelPath)
}

func (a *Artifacts) Close() error {
	a.mu.Lock()
	watcher := a.watcher
	a.watcher = nil
	a.mu.Unlock()

	select {
	case <-a.done:
	default:
		close(a.done)
	}
	if watcher != nil {
		return watcher.Close()
	}
	return nil
}

// Process-wide singleton: the first caller pays the load cost, concurrent
// first callers share the same in-progress load.
var (
	globalArtifacts *Artifacts
	artifactsOnce   sync.Once
	artifactsErr    error
)

func GetArtifacts(pipelinePath, modelPath string) (*Artifacts, error) {
	artifactsOnce.Do(func() {
		globalArtifacts, artifactsErr = LoadArtifacts(pipelinePath, modelPath)
	})
	return globalArtifacts, artifactsErr
}

// ResetArtifacts clears the singleton (for tests).
func ResetArtifacts() {
	globalArtifacts = nil
	artifactsOnce = sync.Once{}
	artifactsErr = nil
}
