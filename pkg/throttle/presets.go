package throttle

import "context"

// Failed-login throttling policy: 5 attempts per 15 minutes.
const (
	FailedLoginAction        = "failed_login"
	failedLoginLimit         = 5
	failedLoginWindowSeconds = 15 * 60
)

// CheckFailedLogin throttles repeated authentication failures for a
// principal. It is a fixed-policy preset over CheckAndConsume, not a separate
// algorithm; on denial the usual audit record is written.
func (e *Evaluator) CheckFailedLogin(ctx context.Context, principalID string) (*Decision, error) {
	return e.CheckAndConsume(ctx, principalID, FailedLoginAction, failedLoginLimit, failedLoginWindowSeconds)
}
