// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a plain console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV),
//   - level parsing and runtime level changes,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every component receives a context and logs through the logger it carries,
// so supervisor, listener and alarm lines are scoped by name.
package logger
