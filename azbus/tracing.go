package azbus

import (
	"context"

	"github.com/datatrails/go-datatrails-pump/spanner"
	"github.com/datatrails/go-datatrails-pump/tracing"
)

func (s *Sender) updateSendingMesssageForSpan(ctx context.Context, message *OutMessage, span spanner.Spanner) {
	log := tracing.LogFromContext(ctx, s.log)
	defer log.Close()

	for k, v := range span.Attributes(log) {
		OutMessageSetProperty(message, k, v)
	}
	log.Debugf("updateSendingMesssageForSpan(): ApplicationProperties %v", OutMessageProperties(message))
}
