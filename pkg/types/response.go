package types

// SuccessEnvelope wraps every 2xx body, business rejections included.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// BusinessRejection is the body of an expected, user-actionable refusal. It
// travels inside a SuccessEnvelope with HTTP 200 so clients can tell it apart
// from a system failure.
type BusinessRejection struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
