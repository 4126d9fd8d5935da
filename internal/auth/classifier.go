package auth

import "go.uber.org/zap/zapcore"

// Response header flags set on bearer failures.
const (
	HeaderTokenExpired = "Token-Expired"
	HeaderInvalidToken = "Invalid-Token"
)

// Failure messages returned in the JSON body.
const (
	MessageExpiredToken = "Expired Token"
	MessageInvalidToken = "Invalid Token"
	MessageUnauthorized = "Unauthorized Access or Invalid Token!"
)

// Classification is the response-facing description of a failed Outcome.
// HeaderFlag is empty when no flag applies.
type Classification struct {
	Kind       OutcomeKind
	HeaderFlag string
	Message    string
	Severity   zapcore.Level
}

// Classify maps a failed outcome onto its header flag, message and log severity.
func Classify(o Outcome) Classification {
	switch o.Kind {
	case OutcomeExpired:
		return Classification{Kind: o.Kind, HeaderFlag: HeaderTokenExpired, Message: MessageExpiredToken, Severity: zapcore.ErrorLevel}
	case OutcomeInvalidSignature, OutcomeDecryptionFailed, OutcomeInvalidIssuer:
		return Classification{Kind: o.Kind, HeaderFlag: HeaderInvalidToken, Message: MessageInvalidToken, Severity: zapcore.ErrorLevel}
	default:
		return Classification{Kind: o.Kind, Message: MessageUnauthorized, Severity: zapcore.ErrorLevel}
	}
}
