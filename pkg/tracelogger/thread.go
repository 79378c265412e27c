package tracelogger

import (
	"log/slog"

	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/utils"
)

// Trace session of a thread. Lives from the entry of a top level function to
// its return
type session struct {
	traceName string
	stream    *stream
	count     int64
	toplevel  string
	status    Status
	// Set after the header of the top level function return. The session no
	// longer logs but still accepts the records of that return
	closing bool
}

func (s *session) logging() bool {
	return s != nil && (s.status == Status_LogAndContinue || s.closing)
}

// Describes an operand record, everything but its value
type Operand struct {
	// 1-based operand index, trace.ResultLine or trace.ForwardLine
	Param int
	// Width in bits
	Size      int
	IsReg     bool
	Label     string
	IsPhi     bool
	PrevBlock string
}

// Thread is the handle of the runtime state of one thread of execution. A
// handle must not be used from more than one goroutine at a time
type Thread struct {
	tracer  *Tracer
	session *session
}

func (th *Thread) newSession(traceName string) {
	th.session = &session{traceName: traceName, status: Status_DoNotLog}
}

func (th *Thread) endSession() {
	th.session = nil
}

// Sets the name of the trace the next top level function invocation of this
// thread is written to
func (th *Thread) SetTraceName(name string) {
	if th.session == nil {
		th.newSession(name)
		return
	}
	th.session.traceName = name
}

func (th *Thread) TraceName() string {
	if th.session == nil {
		return ""
	}
	return th.session.traceName
}

func (th *Thread) Status() Status {
	if th.session == nil || th.session.closing {
		return Status_DoNotLog
	}
	return th.session.status
}

// Returns the name of the function whose entry started the current session,
// empty if idle
func (th *Thread) CurrentTopLevel() string {
	if th.session == nil {
		return ""
	}
	return th.session.toplevel
}

// Returns the number of headers written by the current session
func (th *Thread) InstructionCount() int64 {
	if th.session == nil {
		return 0
	}
	return th.session.count
}

func (th *Thread) transition(from, to Status) {
	s := th.session
	switch {
	case from == Status_LogAndContinue && to == Status_DoNotLog:
		th.tracer.logger.Info("stopping logging", slog.String("trace", s.traceName), slog.Int64("inst", s.count))
	case from == Status_DoNotLog && to == Status_LogAndContinue:
		th.tracer.logger.Info("starting to log", slog.String("trace", s.traceName), slog.Int64("inst", s.count))
	}
}

// Returns the stream of the current session, opening it if needed
func (th *Thread) output() *trace.Encoder {
	s := th.session
	if s.stream == nil || s.stream.name != s.traceName {
		stream, err := th.tracer.stream(s.traceName)
		if err != nil {
			th.tracer.raise(th, err)
			return nil
		}
		s.stream = stream
	}
	return s.stream.enc
}

func (th *Thread) write(write func(enc *trace.Encoder) error) {
	enc := th.output()
	if enc == nil {
		return
	}
	if err := write(enc); err != nil {
		th.tracer.raise(th, err)
	}
}

// Marks the invocation of a tracked function. Starts a new session if the
// thread is idle. In top level mode the active top level function cannot be
// entered again before it returns
func (th *Thread) LogEntry(function string, params int, toplevelMode bool) {
	if th.session == nil || th.session.closing {
		th.newSession(th.tracer.defaultTraceName)
	}

	s := th.session
	if toplevelMode && s.status == Status_LogAndContinue && s.toplevel == function {
		th.tracer.raise(th, utils.MakeError(ErrNestedTopLevel, "'%v' called while '%v' is active", function, s.toplevel))
		return
	}

	if s.status == Status_DoNotLog {
		th.transition(s.status, Status_LogAndContinue)
		s.status = Status_LogAndContinue
		s.toplevel = function
	}

	th.write(func(enc *trace.Encoder) error {
		return enc.WriteEntry(&trace.Entry{Function: function, Params: params})
	})
}

// Logs the header of an instruction, updating the session status first. Operand
// records that follow are only written if the header was
func (th *Thread) LogHeader(line int, function, block, instruction string, opcode int, tracked, toplevelMode bool) {
	if th.session == nil || th.session.closing {
		if !tracked {
			th.endSession()
			return
		}
		th.newSession(th.tracer.defaultTraceName)
	}

	s := th.session
	status, err := Next(toplevelMode, tracked, opcode, function, s.toplevel, s.status)
	if err != nil {
		th.tracer.raise(th, err)
		return
	}

	previous := s.status
	th.transition(previous, status)
	s.status = status

	switch {
	case status == Status_LogAndContinue && s.toplevel == "":
		s.toplevel = function
	case previous == Status_LogAndContinue && status == Status_DoNotLog && toplevelMode:
		s.closing = true
	}

	if !s.logging() {
		return
	}

	th.write(func(enc *trace.Encoder) error {
		return enc.WriteHeader(&trace.Header{
			Line:        line,
			Function:    function,
			Block:       block,
			Instruction: instruction,
			Opcode:      opcode,
			Count:       s.count,
		})
	})
	s.count++
}

// Runs after the return of a tracked function in top level mode, closing the
// session if the return ended it
func (th *Thread) UpdateStatus(function string, opcode int, tracked, toplevelMode bool) {
	s := th.session
	if s == nil {
		return
	}

	if s.closing {
		th.endSession()
		return
	}

	status, err := Next(toplevelMode, tracked, opcode, function, s.toplevel, s.status)
	if err != nil {
		th.tracer.raise(th, err)
		return
	}

	th.transition(s.status, status)
	s.status = status

	switch {
	case status == Status_LogAndContinue && s.toplevel == "":
		s.toplevel = function
	case status == Status_DoNotLog:
		th.endSession()
	}
}

func (th *Thread) logOperand(op Operand, value trace.Value) {
	if !th.session.logging() {
		return
	}

	th.write(func(enc *trace.Encoder) error {
		return enc.WriteOperand(&trace.Operand{
			Param:     op.Param,
			Size:      op.Size,
			Value:     value,
			IsReg:     op.IsReg,
			Label:     op.Label,
			IsPhi:     op.IsPhi,
			PrevBlock: op.PrevBlock,
		})
	})
}

func (th *Thread) LogInt(op Operand, value int64) {
	th.logOperand(op, trace.Int(value))
}

func (th *Thread) LogPtr(op Operand, value uint64) {
	th.logOperand(op, trace.Ptr(value))
}

func (th *Thread) LogDouble(op Operand, value float64) {
	th.logOperand(op, trace.Double(value))
}

// Logs a vector from its bytes in memory. Only the first Size/8 bytes are written
func (th *Thread) LogVector(op Operand, value []byte) {
	if n := op.Size / 8; n < len(value) {
		value = value[:n]
	}
	th.logOperand(op, trace.Vector(value))
}

func (th *Thread) LogString(op Operand, value string) {
	th.logOperand(op, trace.String(value))
}
