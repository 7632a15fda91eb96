// Package errors provides the error taxonomy for the document store.
//
// # Overview
//
// Every failure a caller can observe falls into one of three classes: Transient (temporary,
// retryable), Invalid (bad input, stale token or undecodable data, never retried) and Fatal
// (misconfiguration or an unrecognised remote fault, stop and escalate).
//
// On top of the classes sit the document taxonomy entries:
//
//   - ErrNotFound: the target document is absent. Read and Delete treat it as success.
//   - ErrConcurrentModification: a version token no longer matches. Surfaced as
//     *ConcurrentModificationError, which names the expected and, when known, the actual token.
//   - ErrMalformedPayload: the stored bytes are structurally broken (short header, serializer failure).
//   - ErrUnsupportedVersion / ErrUnsupportedFormat: a binary header this build does not understand.
//     Surfaced as *UnsupportedVersionError and *UnsupportedFormatError naming the offending byte.
//   - ErrTimeout, ErrOverloaded, ErrTransportCancelled: transient remote faults.
//
// Remote adapters are responsible for translating their client library errors into these
// sentinels. The document client then decides what to retry with IsTransient alone; there is
// no error-string matching at that layer.
//
// # Error Wrapping Pattern
//
// Context wrapping follows "component.method: action failed: cause":
//
//	return errors.WrapInvalid(err, "Client", "Write", "encode value")
//
// All wrappers preserve the chain, so errors.Is and errors.As keep working:
//
//	var cme *errors.ConcurrentModificationError
//	if errors.As(err, &cme) {
//	    // re-read and retry at the application layer
//	}
//
// Caller cancellation (context.Canceled, context.DeadlineExceeded) is never transient: the caller
// asked the operation to stop.
package errors
