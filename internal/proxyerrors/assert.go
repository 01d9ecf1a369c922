package proxyerrors

import (
	"log/slog"
	"os"
)

// Fatal logs a ProxyError of kind FatalError or AssertFail and terminates
// the process, matching the original's panic-on-programmer-error behavior.
func Fatal(logger *slog.Logger, err *ProxyError) {
	logger.Error("fatal error happened", "kind", err.Kind, "message", err.Msg)
	os.Exit(1)
}
