package apierr

import (
	"context"
	"errors"
)

// Kind classifies an error for presentation.
type Kind string

const (
	KindNone           Kind = ""
	KindValidation     Kind = "validation"
	KindWorkflow       Kind = "workflow"
	KindAuthentication Kind = "authentication"
	KindBackend        Kind = "backend"
	KindPartialSave    Kind = "partial_save"
)

// Message is what a presentation layer shows for an error.
type Message struct {
	Kind Kind
	Text string
	// Blocking messages stop the view until the user acts (re-login).
	Blocking bool
	// Dismissible messages are banners the user may close.
	Dismissible bool
}

// Describe converts any error into a display message. It never panics and
// always returns text for a non-nil error.
func Describe(err error) Message {
	if err == nil {
		return Message{}
	}

	var verr *ValidationError
	var werr *WorkflowError
	var aerr *APIError
	var perr *PartialSaveError

	switch {
	case errors.As(err, &verr):
		return Message{Kind: KindValidation, Text: verr.Error()}
	case errors.As(err, &werr):
		// The full text keeps context added while wrapping, like a student id.
		return Message{Kind: KindWorkflow, Text: err.Error(), Dismissible: true}
	case errors.Is(err, ErrUnauthenticated):
		return Message{
			Kind:     KindAuthentication,
			Text:     "Your session has expired or you are not signed in. Please log in again.",
			Blocking: true,
		}
	case errors.As(err, &perr):
		return Message{Kind: KindPartialSave, Text: perr.Error(), Dismissible: true}
	case errors.As(err, &aerr):
		text := aerr.Message
		if text == "" {
			text = GenericMessage
		}
		return Message{Kind: KindBackend, Text: text, Dismissible: true}
	case errors.Is(err, context.DeadlineExceeded):
		return Message{Kind: KindBackend, Text: "The server took too long to respond.", Dismissible: true}
	}
	return Message{Kind: KindBackend, Text: GenericMessage, Dismissible: true}
}
