package bridge

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	uuid "github.com/satori/go.uuid"
	"github.com/tidwall/gjson"
	"gitlab.com/kittcore/cache"
	"gitlab.com/kittcore/kitt"
	"gitlab.com/kittcore/webrequest"
)

// Completion of a native command
type Completion func(result interface{}, err error)

// Call is a single command invocation from a frame
type Call struct {
	Name      string
	Frame     *Frame
	Extension *Extension
	Context   *kitt.MessageContext
	Data      gjson.Result
	Raw       interface{}
	FrameURL  string
}

// Arg at index of the call's data array
func (c *Call) Arg(index int) gjson.Result {
	return c.Data.Get(strconv.Itoa(index))
}

// Command handles a native call. Sync commands always complete before returning and
// may be reached through the synchronous entry point.
type Command struct {
	Fn   func(call *Call, done Completion)
	Sync bool
}

// Switchboard receives every call frames make to the native side and runs them one
// at a time in arrival order
type Switchboard struct {
	cfg        *kitt.Config
	dispatcher *webrequest.Dispatcher
	store      kitt.RuleStorer
	queue      *cache.SerialQueue

	lock       *sync.RWMutex
	extensions map[string]*Extension
	global     *Extension
	commands   map[string]*Command
}

// NewSwitchboard with the built in commands registered
func NewSwitchboard(cfg *kitt.Config, dispatcher *webrequest.Dispatcher, store kitt.RuleStorer) *Switchboard {
	s := &Switchboard{
		cfg:        cfg,
		dispatcher: dispatcher,
		store:      store,
		queue:      cache.NewSerialQueue(),
		lock:       &sync.RWMutex{},
		extensions: make(map[string]*Extension),
		commands:   make(map[string]*Command),
	}
	s.global = newExtension(uuid.NewV4().String(), s.cacheTimeout())
	s.registerCommands()
	return s
}

// Register a command, replacing any existing one of the same name
func (s *Switchboard) Register(name string, cmd *Command) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.commands[name] = cmd
}

// Dispatcher of request rules
func (s *Switchboard) Dispatcher() *webrequest.Dispatcher {
	return s.dispatcher
}

// Global scope used for calls which do not name a known extension
func (s *Switchboard) Global() *Extension {
	return s.global
}

// Extension by id
func (s *Switchboard) Extension(extensionID string) (*Extension, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	ext, ok := s.extensions[extensionID]
	return ext, ok
}

func (s *Switchboard) extension(extensionID string) *Extension {
	if ext, ok := s.Extension(extensionID); ok {
		return ext
	}
	return s.global
}

func (s *Switchboard) command(name string) (*Command, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	cmd, ok := s.commands[name]
	return cmd, ok
}

func (s *Switchboard) cacheTimeout() time.Duration {
	return time.Duration(s.cfg.CacheTimeout) * time.Millisecond
}

// Post a message from a frame, it is handled on the switchboard's queue
func (s *Switchboard) Post(frame *Frame, name, message string, raw interface{}, frameURL string) bool {
	return s.queue.Enqueue(cache.PriorityNormal, func() {
		s.Handle(frame, name, message, raw, frameURL)
	})
}

// Handle a call, replying to the frame when the caller registered a callback
func (s *Switchboard) Handle(frame *Frame, name, message string, raw interface{}, frameURL string) {
	call, err := s.newCall(frame, name, message, raw, frameURL)
	if err != nil {
		log.Warn().Err(err).Str("command", name).Msg("dropping malformed bridge message")
		return
	}

	cmd, ok := s.command(name)
	if !ok {
		s.reply(call, nil, errors.Errorf("unknown command %s", name))
		return
	}

	once := &sync.Once{}
	cmd.Fn(call, func(result interface{}, err error) {
		once.Do(func() {
			s.reply(call, result, err)
		})
	})
}

// HandleSync runs a sync command immediately and returns the encoded result
func (s *Switchboard) HandleSync(frame *Frame, name, message string, frameURL string) string {
	call, err := s.newCall(frame, name, message, nil, frameURL)
	if err != nil {
		return kitt.ErrorTag("%s", err)
	}

	cmd, ok := s.command(name)
	if !ok {
		return kitt.ErrorTag("unknown command %s", name)
	}
	if !cmd.Sync {
		return kitt.ErrorTag("command %s can not be called synchronously", name)
	}

	var result interface{}
	cmd.Fn(call, func(r interface{}, e error) {
		result, err = r, e
	})
	if err != nil {
		return kitt.ErrorTag("%s", err)
	}
	if result == nil {
		return ""
	}
	if str, ok := result.(string); ok {
		return str
	}
	data, err := json.Marshal(result)
	if err != nil {
		return kitt.ErrorTag("%s", err)
	}
	return string(data)
}

func (s *Switchboard) newCall(frame *Frame, name, message string, raw interface{}, frameURL string) (*Call, error) {
	if !gjson.Valid(message) {
		return nil, errors.New("message is not valid json")
	}
	envelope := gjson.Parse(message)

	msgCtx := &kitt.MessageContext{}
	if c := envelope.Get("c"); c.IsObject() {
		if err := json.Unmarshal([]byte(c.Raw), msgCtx); err != nil {
			return nil, errors.Wrap(err, "message context")
		}
	}

	data := envelope.Get("d")
	if (!data.Exists() || data.Type == gjson.Null) && raw != nil {
		rawJSON, err := json.Marshal(raw)
		if err != nil {
			return nil, errors.Wrap(err, "raw message data")
		}
		data = gjson.ParseBytes(rawJSON)
	}

	return &Call{
		Name:      name,
		Frame:     frame,
		Extension: s.extension(msgCtx.ExtensionID),
		Context:   msgCtx,
		Data:      data,
		Raw:       raw,
		FrameURL:  frameURL,
	}, nil
}

func (s *Switchboard) reply(call *Call, result interface{}, err error) {
	if err != nil {
		log.Warn().Err(err).Str("command", call.Name).Str("extension_id", call.Extension.ID).Msg("native command failed")
	}
	if call.Context.CallbackID == "" || call.Frame == nil {
		return
	}

	replyCtx := *call.Context
	replyCtx.LastError = nil
	if err != nil {
		replyCtx.LastError = &kitt.BridgeError{Message: err.Error()}
	}

	msg := &kitt.Message{Context: &replyCtx, Data: result}
	delivered := call.Frame.Root().Deliver(msg, func(ret string) {
		if bridgeErr := kitt.ParseErrorTag(ret); bridgeErr != nil {
			log.Warn().Str("command", call.Name).Str("error", bridgeErr.Message).Msg("reply callback failed")
		}
	})
	if !delivered {
		log.Warn().Str("command", call.Name).Str("frame_id", call.Frame.ID).Msg("reply to closed frame")
	}
}

// LoadExtension runs the background script found at scriptPath
func (s *Switchboard) LoadExtension(ctx context.Context, extensionID, scriptPath string) (*Extension, error) {
	src, err := readScript(scriptPath)
	if err != nil {
		return nil, err
	}
	return s.LoadExtensionSource(ctx, extensionID, scriptPath, src)
}

// LoadExtensionSource restores the extension's persisted rules, then starts its
// background frame and runs src in it
func (s *Switchboard) LoadExtensionSource(ctx context.Context, extensionID, name, src string) (*Extension, error) {
	if _, exists := s.Extension(extensionID); exists {
		return nil, errors.Errorf("extension %s is already loaded", extensionID)
	}

	ext := newExtension(extensionID, s.cacheTimeout())
	s.lock.Lock()
	s.extensions[extensionID] = ext
	s.lock.Unlock()

	if err := s.restoreRules(ext); err != nil {
		log.Error().Err(err).Str("extension_id", extensionID).Msg("failed to restore declarative rules")
	}

	frame, err := s.OpenFrame(ctx, ext, nil, "chrome-extension://"+extensionID+"/background.html", nil)
	if err != nil {
		s.UnloadExtension(extensionID)
		return nil, err
	}
	ext.Background = frame

	if err := frame.RunScript(ctx, name, src); err != nil {
		s.UnloadExtension(extensionID)
		return nil, err
	}
	log.Info().Str("extension_id", extensionID).Str("script", name).Msg("extension loaded")
	return ext, nil
}

// OpenFrame for the extension with the native transports and the JS API installed
func (s *Switchboard) OpenFrame(ctx context.Context, ext *Extension, tabID *int64, url string, parent *Frame) (*Frame, error) {
	frame := NewFrame(ext.ID, tabID, url, parent)
	err := frame.DoSync(ctx, func(vm *goja.Runtime) error {
		return s.install(frame, vm)
	})
	if err != nil {
		frame.Close()
		return nil, err
	}
	ext.addFrame(frame)
	return frame, nil
}

// CloseFrame removes the frame's listeners and rules before stopping it
func (s *Switchboard) CloseFrame(ext *Extension, frame *Frame) {
	for _, callbackID := range ext.Listeners.RemoveForFrame(frame.ID) {
		s.dispatcher.RemoveForCallbackID(callbackID)
	}
	ext.removeFrame(frame)
	frame.Close()
}

// UnloadExtension removes its rules and listeners and stops its frames
func (s *Switchboard) UnloadExtension(extensionID string) error {
	s.lock.Lock()
	ext, ok := s.extensions[extensionID]
	delete(s.extensions, extensionID)
	s.lock.Unlock()
	if !ok {
		return errors.Errorf("extension %s is not loaded", extensionID)
	}

	s.dispatcher.RemoveForExtension(extensionID)
	for _, frame := range ext.Frames() {
		s.CloseFrame(ext, frame)
	}
	ext.Cache.Close()
	log.Info().Str("extension_id", extensionID).Msg("extension unloaded")
	return nil
}

// Close every extension and stop handling messages
func (s *Switchboard) Close() {
	s.lock.RLock()
	ids := make([]string, 0, len(s.extensions))
	for id := range s.extensions {
		ids = append(ids, id)
	}
	s.lock.RUnlock()

	for _, id := range ids {
		s.UnloadExtension(id)
	}
	s.global.Cache.Close()
	s.queue.Close()
}

func (s *Switchboard) restoreRules(ext *Extension) error {
	if s.store == nil {
		return nil
	}
	records, err := s.store.Rules(ext.ID)
	if err != nil {
		return err
	}
	for _, record := range records {
		rule, err := webrequest.ParseDeclarativeRule(ext.ID, record.Raw, ext.Listeners)
		if err != nil {
			log.Warn().Err(err).Str("extension_id", ext.ID).Str("rule_id", record.ID).Msg("skipping stored rule")
			continue
		}
		s.dispatcher.Add(rule)
	}
	log.Debug().Str("extension_id", ext.ID).Int("rules", len(records)).Msg("restored declarative rules")
	return nil
}
