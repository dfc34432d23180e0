package azbus

import (
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
)

// OutMessageBatch aliases the azure service bus batch message type.
type OutMessageBatch = azservicebus.MessageBatch
