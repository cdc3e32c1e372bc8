package worker

// #region imports
import (
	"context"
	"errors"
	"net"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// #endregion

// #region classify

// Classify maps an API call error to a failure kind. Timeouts and
// 5xx are transient; 429 and quota exhaustion are rate-limited;
// authentication and the remaining 4xx are fatal. An error that is
// already a *Error keeps its kind.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") {
		return KindRateLimited
	}
	if strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporar") {
		return KindTransient
	}
	return KindFatal
}

func classifyStatus(status int, msg string) Kind {
	switch {
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindTransient
	case status == 401 || status == 403:
		return KindFatal
	case status >= 400:
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "rate limit") {
			return KindRateLimited
		}
		return KindFatal
	default:
		return KindTransient
	}
}

// #endregion
