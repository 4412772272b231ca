package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeySession    = "session_id"
	KeyPackage    = "package"
	KeySpec       = "spec"
	KeyCommand    = "command"
	KeyExitCode   = "exit_code"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyBranch     = "branch"
	KeyURL        = "url"
	KeyMethod     = "method"
	KeyStatus     = "status"
	KeyRemoteAddr = "remote_addr"
	KeyUserAgent  = "user_agent"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Session(id string) slog.Attr      { return slog.String(KeySession, id) }
func Package(name string) slog.Attr    { return slog.String(KeyPackage, name) }
func Spec(spec string) slog.Attr       { return slog.String(KeySpec, spec) }
func Command(cmd string) slog.Attr     { return slog.String(KeyCommand, cmd) }
func ExitCode(code int) slog.Attr      { return slog.Int(KeyExitCode, code) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func Branch(b string) slog.Attr        { return slog.String(KeyBranch, b) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func Status(code int) slog.Attr        { return slog.Int(KeyStatus, code) }
func RemoteAddr(addr string) slog.Attr { return slog.String(KeyRemoteAddr, addr) }
func UserAgent(ua string) slog.Attr    { return slog.String(KeyUserAgent, ua) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
