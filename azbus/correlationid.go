package azbus

import (
	"context"

	"github.com/datatrails/go-datatrails-pump/correlationid"
)

func ContextFromReceivedMessage(ctx context.Context, message *ReceivedMessage) context.Context {
	if message.ApplicationProperties == nil {
		return ctx
	}
	cid, cidFound := message.ApplicationProperties[correlationid.CorrelationIDKey]
	if !cidFound {
		return ctx
	}
	return correlationid.ContextWithCorrelationID(ctx, cid.(string))
}
