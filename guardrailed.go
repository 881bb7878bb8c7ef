package pysandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	outputFrameStart = "OUTPUT_JSON_START"
	outputFrameEnd   = "OUTPUT_JSON_END"
)

// GuardrailedEngine spawns the interpreter directly in the host file
// system, instrumented by the generated prologue plus POSIX resource
// limits and a wall-clock timeout. Per SPEC_FULL.md §1, this is
// defense-in-depth, not a security boundary - it shares the host's
// filesystem namespace.
type GuardrailedEngine struct {
	interp *Interpreter
	limits ResourceLimits
}

// NewGuardrailedEngine constructs a GuardrailedEngine around an already
// discovered interpreter.
func NewGuardrailedEngine(interp *Interpreter, limits ResourceLimits) *GuardrailedEngine {
	return &GuardrailedEngine{interp: interp, limits: limits}
}

// Validate runs the interpreter with a syntax-check program; a
// "SYNTAX_ERROR:" prefixed line on stdout signals rejection, per spec.md
// §4.6.
func (e *GuardrailedEngine) Validate(ctx context.Context, code string) error {
	check := fmt.Sprintf(`import ast, sys
try:
    ast.parse(%s)
except SyntaxError as exc:
    print('SYNTAX_ERROR:' + str(exc))
    sys.exit(1)
`, pyStringLiteral(code))

	cmd := buildGuardrailedCommand(ctx, e.interp.Path(), check, ResourceLimits{})
	out, err := cmd.CombinedOutput()
	if err != nil {
		if bytes.Contains(out, []byte("SYNTAX_ERROR:")) {
			return newErr(ErrKindSyntaxError, firstLineWithPrefix(string(out), "SYNTAX_ERROR:"))
		}
		return wrapErr(ErrKindInternalError, "validate: "+string(out), err)
	}
	return nil
}

// Execute assembles the prologue-instrumented program and runs it with
// resource limits and a wall-clock timeout, per spec.md §4.6.
func (e *GuardrailedEngine) Execute(ctx context.Context, code string, inputs map[string]interface{}, opts ExecutionOptions) (*ExecutionResult, error) {
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return nil, wrapErr(ErrKindJsonError, "encode inputs", err)
	}

	program, err := buildPrologue(opts.ImportPolicy, opts.NetworkAllow, string(inputsJSON), code, false)
	if err != nil {
		return nil, err
	}

	limits := e.limits
	if opts.MemoryMB > 0 {
		limits.MaxMemoryMB = opts.MemoryMB
	}
	if opts.CPUSeconds > 0 {
		limits.MaxCPUSeconds = opts.CPUSeconds
	}
	if opts.MaxThreads > 0 {
		limits.MaxThreads = opts.MaxThreads
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := buildGuardrailedCommand(runCtx, e.interp.Path(), program, limits)
	cmd.Env = buildChildEnv(opts, limits)
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return nil, newErr(ErrKindTimeout, fmt.Sprintf("execution exceeded %s", opts.Timeout))
	}

	return parseFramedOutput(stdout.String(), stderr.String(), runErr)
}

// Capabilities reports this engine's descriptor. The guardrailed engine
// always advertises the common data-science libraries as reachable,
// because nothing about the native engine's mechanism restricts them -
// whether they are actually importable is a property of the import policy,
// not of this engine.
func (e *GuardrailedEngine) Capabilities() EngineCapabilities {
	return EngineCapabilities{
		Name:          "guardrailed",
		Numpy:         true,
		Matplotlib:    true,
		Pandas:        true,
		MaxMemoryMB:   e.limits.MaxMemoryMB,
		MaxCPUSeconds: e.limits.MaxCPUSeconds,
		SecurityLevel: 5,
	}
}

// Shutdown releases the interpreter's auto-created config directory, if
// any.
func (e *GuardrailedEngine) Shutdown() error {
	return e.interp.Close()
}

// buildChildEnv assembles the child's environment per spec.md §4.6:
// PYTHONIOENCODING, thread caps, then caller-supplied env_vars overlaying
// those defaults.
func buildChildEnv(opts ExecutionOptions, limits ResourceLimits) []string {
	threads := limits.MaxThreads
	if threads == 0 {
		threads = 4
	}
	threadStr := strconv.FormatUint(threads, 10)

	env := map[string]string{
		"PYTHONIOENCODING":   "utf-8",
		"OMP_NUM_THREADS":    threadStr,
		"OPENBLAS_NUM_THREADS": threadStr,
		"MKL_NUM_THREADS":    threadStr,
	}
	for k, v := range opts.EnvVars {
		env[k] = v
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// frameOutput mirrors the JSON shape the prologue prints between the
// sentinel lines.
type frameOutput struct {
	Stdout      string          `json:"stdout"`
	Stderr      string          `json:"stderr"`
	Result      json.RawMessage `json:"result"`
	Error       string          `json:"error"`
	OutputFiles []string        `json:"output_files"`
	Workspace   string          `json:"workspace"`
}

// parseFramedOutput locates the sentinel-delimited JSON block in stdout and
// classifies the outcome per spec.md §4.6's output-parsing rules.
func parseFramedOutput(stdout, stderr string, runErr error) (*ExecutionResult, error) {
	start := strings.Index(stdout, outputFrameStart)
	end := strings.Index(stdout, outputFrameEnd)

	if start == -1 || end == -1 || end < start {
		if runErr != nil {
			if strings.Contains(stderr, "MemoryError") {
				return nil, newErr(ErrKindMemoryLimitExceeded, stderr)
			}
			return nil, newErr(ErrKindRuntimeError, stderr)
		}
		return nil, newErr(ErrKindRuntimeError, "no framed output found in stdout")
	}

	jsonBlock := strings.TrimSpace(stdout[start+len(outputFrameStart) : end])

	var frame frameOutput
	if err := json.Unmarshal([]byte(jsonBlock), &frame); err != nil {
		return nil, wrapErr(ErrKindJsonError, "decode framed output", err)
	}

	result := &ExecutionResult{
		Stdout:      frame.Stdout,
		Stderr:      frame.Stderr,
		Error:       frame.Error,
		OutputFiles: frame.OutputFiles,
		Workspace:   frame.Workspace,
	}

	if len(frame.Result) > 0 && string(frame.Result) != "null" {
		var val interface{}
		if err := json.Unmarshal(frame.Result, &val); err == nil {
			result.Result = val
		}
	}

	if frame.Error != "" {
		se := classifyRuntimeError(frame.Error)
		log().Debug("sandboxed execution raised", zap.String("error", frame.Error))
		return result, se
	}

	return result, nil
}

// classifyRuntimeError turns the `error` string the prologue captured
// ("TypeName: message") into a *SandboxError, special-casing import
// rejections so their message names the blocked module, per spec.md §7.
func classifyRuntimeError(errStr string) *SandboxError {
	if strings.HasPrefix(errStr, "ImportError:") || strings.HasPrefix(errStr, "PermissionError:") {
		if strings.Contains(errStr, "import of") {
			se := newErr(ErrKindImportNotAllowed, errStr)
			attachHintFromMessage(se, errStr)
			return se
		}
		if strings.Contains(errStr, "write access") || strings.Contains(errStr, "network access") {
			se := newErr(ErrKindDisallowedOperation, errStr)
			attachHintFromMessage(se, errStr)
			return se
		}
	}
	se := newErr(ErrKindRuntimeError, errStr)
	attachHintFromMessage(se, errStr)
	return se
}

func attachHintFromMessage(se *SandboxError, errStr string) {
	parts := strings.SplitN(errStr, ":", 2)
	if len(parts) != 2 {
		return
	}
	attachHint(se, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
}

func firstLineWithPrefix(s, prefix string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix)
		}
	}
	return s
}
