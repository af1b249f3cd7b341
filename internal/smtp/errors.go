package smtp

import "errors"

// ErrorKind classifies a delivery failure by the protocol phase and reply
// code that produced it, rather than by error text.
type ErrorKind string

const (
	KindConnectionRejected   ErrorKind = "connection_rejected"
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindInvalidRecipient     ErrorKind = "invalid_recipient"
	KindDeliveryRejected     ErrorKind = "delivery_rejected"
	KindTimeout              ErrorKind = "timeout"
	KindTLSFailure           ErrorKind = "tls_failure"
	KindUnknown              ErrorKind = "unknown"
)

// DeliveryError is a classified delivery failure for a single send attempt.
type DeliveryError struct {
	Kind    ErrorKind
	Code    int // SMTP reply code, 0 when the failure was not a reply
	Message string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// KindOf returns the classification of err, or KindUnknown for errors that
// did not originate in the transport.
func KindOf(err error) ErrorKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
