// Package replay runs planned modules along scripted execution paths, calling
// the tracing runtime the way an instrumented binary would
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Manu343726/lltrace/pkg/ir"
	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/tracelogger"
	"github.com/Manu343726/lltrace/pkg/tracer/planner"
	"github.com/Manu343726/lltrace/pkg/utils"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrUnknownBlock    = errors.New("unknown block")
	ErrSharedTrace     = errors.New("trace shared by concurrent threads")
	ErrNoThread        = errors.New("no thread handle in context")
)

type Settings struct {
	Tracer *tracelogger.Tracer
	Plan   *planner.Plan
	Logger *slog.Logger
}

// Replayer drives the runtime with the calls of a plan
type Replayer struct {
	tracer *tracelogger.Tracer
	plan   *planner.Plan
	logger *slog.Logger
}

func New(settings Settings) *Replayer {
	r := &Replayer{
		tracer: settings.Tracer,
		plan:   settings.Plan,
		logger: settings.Logger,
	}

	if r.logger == nil {
		r.logger = slog.Default()
	}

	return r
}

// Runs every thread of the script concurrently. Threads must write to distinct
// traces
func (r *Replayer) Run(ctx context.Context, script *Script) error {
	traces := map[string]string{}
	for _, thread := range script.Threads {
		name := thread.Trace
		if name == "" {
			name = r.tracer.DefaultTraceName()
		}
		if other, ok := traces[name]; ok {
			return utils.MakeError(ErrSharedTrace, "threads '%v' and '%v' write to '%v'", other, thread.Name, name)
		}
		traces[name] = thread.Name
	}

	group, ctx := errgroup.WithContext(ctx)

	for _, thread := range script.Threads {
		thread := thread
		group.Go(func() error {
			defer r.tracer.Release()
			return r.RunThread(tracelogger.WithThread(ctx, r.tracer.Current()), thread)
		})
	}

	return group.Wait()
}

// Runs the path of a thread with the thread handle carried by ctx. Runtime
// fatal errors are returned as *tracelogger.FatalError
func (r *Replayer) RunThread(ctx context.Context, script ThreadScript) (err error) {
	thread, ok := tracelogger.ThreadFrom(ctx)
	if !ok {
		return ErrNoThread
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			fatal, ok := recovered.(*tracelogger.FatalError)
			if !ok {
				panic(recovered)
			}
			err = fatal
		}
	}()

	env := &threadEnv{
		thread: thread,
		script: script,
		values: map[string]Values{},
	}
	for function, values := range script.Values {
		env.update(function, values)
	}

	logger := r.logger.With(slog.String("thread", script.Name))
	logger.Debug("replaying", slog.Int("steps", len(script.Path)))

	for i, step := range script.Path {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.step(env, step); err != nil {
			return utils.MakeError(err, "thread '%v' step %v", script.Name, i)
		}
	}

	logger.Debug("done", slog.Int64("inst", thread.InstructionCount()))
	return nil
}

type threadEnv struct {
	thread *tracelogger.Thread
	script ThreadScript
	values map[string]Values
}

func (env *threadEnv) update(function string, values Values) {
	if env.values[function] == nil {
		env.values[function] = Values{}
	}
	for label, value := range values {
		env.values[function][label] = value
	}
}

func (env *threadEnv) lookup(function, label string) (any, bool) {
	value, ok := env.values[function][label]
	return value, ok
}

func (r *Replayer) step(env *threadEnv, step Step) error {
	fn := r.plan.Module.Function(step.Function)
	if fn == nil {
		return utils.MakeError(ErrUnknownFunction, "'%v'", step.Function)
	}

	bb := fn.Block(step.Block)
	if bb == nil {
		return utils.MakeError(ErrUnknownBlock, "'%v' in function '%v'", step.Block, step.Function)
	}

	to := step.To
	if to == 0 || to > len(bb.Instructions) {
		to = len(bb.Instructions)
	}
	if step.From > to {
		return utils.MakeError(ErrInvalidScript, "range [%v, %v) out of block '%v'", step.From, step.To, step.Block)
	}

	env.update(step.Function, step.Values)

	if env.script.Trace != "" && env.thread.CurrentTopLevel() == "" && env.thread.TraceName() != env.script.Trace {
		env.thread.SetTraceName(env.script.Trace)
	}

	for _, inst := range bb.Instructions[step.From:to] {
		for _, call := range r.plan.Before(inst) {
			if err := r.dispatch(env, fn, call); err != nil {
				return err
			}
		}
		for _, call := range r.plan.After(inst) {
			if err := r.dispatch(env, fn, call); err != nil {
				return err
			}
		}
	}

	return nil
}

func (r *Replayer) dispatch(env *threadEnv, fn *ir.Function, call planner.Call) error {
	th := env.thread

	switch c := call.(type) {
	case *planner.LabelMapCall:
		r.tracer.RegisterLabelMap(c.LabelMap)
	case *planner.EntryCall:
		th.LogEntry(c.Function, c.Params, c.TopLevelMode)
	case *planner.HeaderCall:
		th.LogHeader(c.Line, c.Function, c.Block, c.Instruction, int(c.Opcode), c.Tracked, c.TopLevelMode)
	case *planner.StatusCall:
		th.UpdateStatus(c.Function, int(c.Opcode), c.Tracked, c.TopLevelMode)
	case *planner.OperandCall:
		return r.logOperand(env, fn, c)
	default:
		return fmt.Errorf("unexpected runtime call %T", call)
	}

	return nil
}

func (r *Replayer) logOperand(env *threadEnv, fn *ir.Function, c *planner.OperandCall) error {
	th := env.thread
	op := tracelogger.Operand{
		Param:     c.Param,
		Size:      c.Size,
		IsReg:     c.IsReg,
		Label:     c.Label,
		IsPhi:     c.IsPhi,
		PrevBlock: c.PrevBlock,
	}

	switch c.Kind {
	case trace.ValueKind_String:
		th.LogString(op, c.Text)
		return nil
	case trace.ValueKind_Vector:
		data, err := r.vector(env, fn, c)
		if err != nil {
			return err
		}
		th.LogVector(op, data)
		return nil
	}

	value, err := r.scalar(env, fn, c)
	if err != nil {
		return err
	}

	switch c.Kind {
	case trace.ValueKind_Ptr:
		n, err := toInt(value)
		if err != nil {
			return utils.MakeError(err, "operand '%v'", c.Label)
		}
		th.LogPtr(op, uint64(n))
	case trace.ValueKind_Double:
		f, err := toFloat(value)
		if err != nil {
			return utils.MakeError(err, "operand '%v'", c.Label)
		}
		th.LogDouble(op, f)
	default:
		n, err := toInt(value)
		if err != nil {
			return utils.MakeError(err, "operand '%v'", c.Label)
		}
		th.LogInt(op, zeroExtend(n, c.Size))
	}

	return nil
}

// Returns the runtime value of a scalar operand: constants evaluate to
// themselves, everything else comes from the values of the function
func (r *Replayer) scalar(env *threadEnv, fn *ir.Function, c *planner.OperandCall) (any, error) {
	if c.Value == nil {
		return 0, nil
	}

	if constant, ok := c.Value.(*ir.Constant); ok {
		switch constant.Kind {
		case ir.ConstantKind_Int:
			return constant.Int, nil
		case ir.ConstantKind_Float:
			return constant.Float, nil
		}
		return 0, nil
	}

	if value, ok := env.lookup(fn.FuncName, r.label(c)); ok {
		return value, nil
	}

	r.logger.Debug("no value, logging zero", slog.String("function", fn.FuncName), slog.String("operand", r.label(c)))
	return 0, nil
}

// Returns the bytes of a vector operand laid out like its scratch buffer. Plans
// are shared by every thread so the buffer itself is never written
func (r *Replayer) vector(env *threadEnv, fn *ir.Function, c *planner.OperandCall) ([]byte, error) {
	var data []byte

	if constant, ok := c.Value.(*ir.Constant); ok {
		data = constantBytes(constant)
	} else if value, ok := env.lookup(fn.FuncName, r.label(c)); ok {
		var err error
		if data, err = toBytes(value); err != nil {
			return nil, utils.MakeError(err, "operand '%v'", c.Label)
		}
	}

	if c.Scratch == nil {
		return data, nil
	}

	buffer := make([]byte, len(c.Scratch.Bytes))
	copy(buffer, data)
	return buffer, nil
}

// Returns the key of an operand in the values table
func (r *Replayer) label(c *planner.OperandCall) string {
	if c.Label != "" {
		return c.Label
	}
	if c.Value != nil {
		return c.Value.Name()
	}
	return ""
}
