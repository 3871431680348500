// Package alert defines the result value returned by business operations.
//
// Business outcomes (validation failures, duplicates, bad credentials) are
// reported as a Result instead of an error, leaving presentation to the caller.
package alert

// Type tags a Result.
type Type string

const (
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
	TypeError   Type = "error"
)

// Default messages used when a constructor is called without one.
const (
	DefaultSuccess = "Operación completada con éxito!"
	DefaultWarning = "Error al realizar la operacion intenete de nuevo!"
	DefaultInfo    = "Realizando la operacion espere!"
	DefaultError   = "Hubo un problema intente de nuevo!"
)

// Result is a tagged message with an optional payload.
type Result struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Success builds a success result. With no message the default is used.
func Success(msg ...string) Result { return newResult(TypeSuccess, DefaultSuccess, msg) }

// Warning builds a warning result. With no message the default is used.
func Warning(msg ...string) Result { return newResult(TypeWarning, DefaultWarning, msg) }

// Info builds an info result. With no message the default is used.
func Info(msg ...string) Result { return newResult(TypeInfo, DefaultInfo, msg) }

// Error builds an error result. With no message the default is used.
func Error(msg ...string) Result { return newResult(TypeError, DefaultError, msg) }

func newResult(t Type, fallback string, msg []string) Result {
	m := fallback
	if len(msg) > 0 && msg[0] != "" {
		m = msg[0]
	}
	return Result{Type: t, Message: m}
}

// WithData returns a copy of r carrying data.
func (r Result) WithData(data any) Result {
	r.Data = data
	return r
}

// OK reports whether r is a success.
func (r Result) OK() bool { return r.Type == TypeSuccess }
