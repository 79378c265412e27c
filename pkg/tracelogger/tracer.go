package tracelogger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/utils"
	"github.com/petermattis/goid"
)

const DefaultTraceName = "dynamic_trace.gz"

// Opens the stream a trace is written to
type Opener func(name string) (io.WriteCloser, error)

type Settings struct {
	// Label map embedded at the start of every trace stream
	LabelMap string
	// Trace name of sessions created without an explicit name
	DefaultTraceName string
	// Compression codec of trace files. Ignored if Open is set
	Codec trace.Codec
	// Overrides how trace streams are opened, trace.Create by default
	Open   Opener
	Logger *slog.Logger
	// Called on unrecoverable runtime errors. Panics with a *FatalError by default
	Fatal func(*FatalError)
}

type stream struct {
	name string
	w    io.WriteCloser
	enc  *trace.Encoder
}

// Tracer holds the process wide runtime state: the label map and the registry
// of open trace streams. Per thread state lives in Thread handles.
//
// Streams are shared by every session resolving to the same trace name. Opening
// a stream is serialized, writing to it is not: threads writing concurrently
// must use distinct trace names.
type Tracer struct {
	labelMap         string
	defaultTraceName string
	open             Opener
	logger           *slog.Logger
	fatal            func(*FatalError)

	lock    sync.Mutex
	streams map[string]*stream

	threads sync.Map
}

func New(settings Settings) *Tracer {
	t := &Tracer{
		labelMap:         settings.LabelMap,
		defaultTraceName: settings.DefaultTraceName,
		open:             settings.Open,
		logger:           settings.Logger,
		fatal:            settings.Fatal,
		streams:          make(map[string]*stream),
	}

	if t.defaultTraceName == "" {
		t.defaultTraceName = DefaultTraceName
	}

	if t.open == nil {
		codec := settings.Codec
		if codec == nil {
			codec = trace.CodecForPath(t.defaultTraceName)
		}
		t.open = func(name string) (io.WriteCloser, error) {
			return trace.Create(name, codec)
		}
	}

	if t.logger == nil {
		t.logger = slog.Default()
	}

	if t.fatal == nil {
		t.fatal = func(err *FatalError) {
			panic(err)
		}
	}

	return t
}

// Sets the label map written at the start of streams opened from now on
func (t *Tracer) RegisterLabelMap(labelMap string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.labelMap = labelMap
}

func (t *Tracer) DefaultTraceName() string {
	return t.defaultTraceName
}

// Returns the stream with the given name, opening it and writing the label map
// preamble if this is the first time it is requested
func (t *Tracer) stream(name string) (*stream, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if s, ok := t.streams[name]; ok {
		return s, nil
	}

	w, err := t.open(name)
	if err != nil {
		return nil, utils.MakeError(ErrTraceOpen, "'%v': %w", name, err)
	}

	s := &stream{name: name, w: w, enc: trace.NewEncoder(w)}
	if err := s.enc.WriteLabelMap(t.labelMap); err != nil {
		w.Close()
		return nil, utils.MakeError(ErrTraceOpen, "'%v': %w", name, err)
	}

	t.streams[name] = s
	t.logger.Debug("opened trace", slog.String("trace", name))
	return s, nil
}

// Returns the names of the open trace streams
func (t *Tracer) Streams() []string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return utils.SortedKeys(t.streams)
}

// Flushes and closes every open stream. Meant to run once at process exit
func (t *Tracer) Close() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	var errs []error
	for _, name := range utils.SortedKeys(t.streams) {
		if err := t.streams[name].w.Close(); err != nil {
			errs = append(errs, utils.MakeError(err, "closing '%v'", name))
		}
	}
	t.streams = make(map[string]*stream)

	return errors.Join(errs...)
}

// Returns a new thread handle not bound to any goroutine
func (t *Tracer) NewThread() *Thread {
	return &Thread{tracer: t}
}

// Returns the thread handle of the calling goroutine, creating it on first use
func (t *Tracer) Current() *Thread {
	id := goid.Get()
	if thread, ok := t.threads.Load(id); ok {
		return thread.(*Thread)
	}

	thread, _ := t.threads.LoadOrStore(id, t.NewThread())
	return thread.(*Thread)
}

// Forgets the thread handle of the calling goroutine
func (t *Tracer) Release() {
	t.threads.Delete(goid.Get())
}

func (t *Tracer) raise(thread *Thread, err error) {
	name := t.defaultTraceName
	if thread.session != nil {
		name = thread.session.traceName
	}
	t.fatal(&FatalError{Thread: name, Err: err})
}

type threadKey struct{}

// Returns a copy of ctx carrying the thread handle
func WithThread(ctx context.Context, thread *Thread) context.Context {
	return context.WithValue(ctx, threadKey{}, thread)
}

// Returns the thread handle carried by ctx, if any
func ThreadFrom(ctx context.Context) (*Thread, bool) {
	thread, ok := ctx.Value(threadKey{}).(*Thread)
	return thread, ok
}
