package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	// Configuration and device acquisition. Not retryable without user input.
	ReasonMissingCredential ReasonCode = "missing_credential"
	ReasonMicPermission     ReasonCode = "mic_permission_denied"
	ReasonMicUnavailable    ReasonCode = "mic_unavailable"
	ReasonMicBusy           ReasonCode = "mic_busy"

	// Provider failures, surfaced to the user but never auto-retried.
	ReasonAuth      ReasonCode = "auth"
	ReasonRateLimit ReasonCode = "rate_limited"
	ReasonNetwork   ReasonCode = "network"
	ReasonProvider  ReasonCode = "provider"

	// Per-unit audio failures, logged and dropped without aborting a session.
	ReasonMalformedAudio ReasonCode = "malformed_audio"

	// Live transport lifecycle.
	ReasonLiveConnect ReasonCode = "live_connect"
	ReasonLiveSend    ReasonCode = "live_send"

	// Simulated-live collaborators.
	ReasonRecognizerUnsupported ReasonCode = "recognizer_unsupported"
	ReasonRecognizerStart       ReasonCode = "recognizer_start"
	ReasonCompletion            ReasonCode = "completion"
	ReasonSynthesize            ReasonCode = "synthesize"
	ReasonPlaybackBusy          ReasonCode = "playback_busy"
)

// Retryable reports whether an error class may succeed on plain retry.
// Credential, permission and auth failures need user action first.
func Retryable(code ReasonCode) bool {
	switch code {
	case ReasonMissingCredential, ReasonMicPermission, ReasonAuth, ReasonRecognizerUnsupported:
		return false
	default:
		return true
	}
}

// UserActionable reports whether the UI should direct the user to
// configuration instead of offering a retry.
func UserActionable(code ReasonCode) bool {
	switch code {
	case ReasonMissingCredential, ReasonAuth, ReasonMicPermission:
		return true
	default:
		return false
	}
}
