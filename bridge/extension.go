package bridge

import (
	"io/ioutil"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/kittcore/cache"
)

// Extension groups the frames, listeners and cache of one loaded extension
type Extension struct {
	ID         string
	Background *Frame
	Listeners  *Listeners
	Cache      *cache.AsyncWaitingReadCache

	lock   *sync.RWMutex
	frames map[string]*Frame
}

func newExtension(extensionID string, cacheTimeout time.Duration) *Extension {
	return &Extension{
		ID:        extensionID,
		Listeners: NewListeners(extensionID),
		Cache:     cache.New(cacheTimeout),
		lock:      &sync.RWMutex{},
		frames:    make(map[string]*Frame),
	}
}

// Frame by id
func (e *Extension) Frame(frameID string) (*Frame, bool) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	frame, ok := e.frames[frameID]
	return frame, ok
}

// Frames open for the extension
func (e *Extension) Frames() []*Frame {
	e.lock.RLock()
	defer e.lock.RUnlock()
	frames := make([]*Frame, 0, len(e.frames))
	for _, frame := range e.frames {
		frames = append(frames, frame)
	}
	return frames
}

func (e *Extension) addFrame(frame *Frame) {
	e.lock.Lock()
	defer e.lock.Unlock()
	e.frames[frame.ID] = frame
}

func (e *Extension) removeFrame(frame *Frame) {
	e.lock.Lock()
	defer e.lock.Unlock()
	delete(e.frames, frame.ID)
}

func readScript(scriptPath string) (string, error) {
	data, err := ioutil.ReadFile(scriptPath)
	if err != nil {
		return "", errors.Wrapf(err, "reading extension script %s", scriptPath)
	}
	return string(data), nil
}
