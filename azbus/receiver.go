package azbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/opentracing/opentracing-go"
)

const (
	// RenewalTime is the how often we want to renew the message PEEK lock
	//
	// Inspection of the topics and subscription shows that the PeekLock timeout is one minute.
	//
	// This clarifies the peeklock duration as 60s: https://github.com/MicrosoftDocs/azure-docs/issues/106047
	//
	// "The default lock duration is indeed 1 minute, we will get this updated in our documentation."
	// "As for your question about RenewLock, it's best to set the lock duration to something higher than your normal"
	// "processing time, so you don't have to call the RenewLock. Note that the maximum value is 5 minutes, so you will"
	// "need to call RenewLock if you want to have this longer. Also note that having a longer lock duration then needed"
	// "has some implications as well, f.e. when your client stops working, the message will only become available again"
	// "after the lock duration has passed."
	//
	// An analysis of elapsed times when processing msgs shows no message takes longer than 10s to process during our
	// normal test suites.
	//
	// Set to 50 seconds, well within the 60 seconds peek lock timeout
	RenewalTime = 50 * time.Second
)

// Settings for Receivers:
//
//     NumberOfReceivedMessages  int
//     RenewMessageLock bool
//
//         Both are carried on ReceiverConfig but are not read by Receiver:
//         ReceiveMessage always fetches a single message, and peek-lock
//         renewal is driven by the caller (the pump package's renewal loop)
//         through RenewMessageLock.

// ReceiverConfig configuration for an azure servicebus queue
type ReceiverConfig struct {
	ConnectionString string

	// Name is the name of the queue or topic
	TopicOrQueueName string

	// Subscriptioon is the name of the topic subscription.
	// If blank then messages are received from a Queue.
	SubscriptionName string

	// See azbus/receiver.go
	NumberOfReceivedMessages int
	RenewMessageLock         bool

	// If a deadletter receiver then this is true
	Deadletter bool

	// ReceiveMode selects PeekLock (the default, zero value) or
	// ReceiveAndDelete. Ignored when Deadletter is true, which always opens
	// PeekLock.
	ReceiveMode azservicebus.ReceiveMode
}

// Receiver to receive messages on  a queue
type Receiver struct {
	azClient AZClient

	Cfg ReceiverConfig

	log      Logger
	mtx      sync.Mutex
	receiver *azservicebus.Receiver
	options  *azservicebus.ReceiverOptions
}

func NewReceiver(log Logger, cfg ReceiverConfig) *Receiver {
	var options *azservicebus.ReceiverOptions
	if cfg.Deadletter {
		options = &azservicebus.ReceiverOptions{
			ReceiveMode: azservicebus.ReceiveModePeekLock,
			SubQueue:    azservicebus.SubQueueDeadLetter,
		}
	} else {
		options = &azservicebus.ReceiverOptions{
			ReceiveMode: cfg.ReceiveMode,
		}
	}

	r := &Receiver{
		Cfg:      cfg,
		azClient: NewAZClient(cfg.ConnectionString),
		options:  options,
	}
	r.log = log.WithIndex("receiver", r.String())
	return r
}

func (r *Receiver) GetAZClient() AZClient {
	return r.azClient
}

// String - returns string representation of receiver.
func (r *Receiver) String() string {
	// No log function calls in this method please.
	if r.Cfg.SubscriptionName != "" {
		if r.Cfg.Deadletter {
			return fmt.Sprintf("%s.%s.deadletter", r.Cfg.TopicOrQueueName, r.Cfg.SubscriptionName)
		}
		return fmt.Sprintf("%s.%s", r.Cfg.TopicOrQueueName, r.Cfg.SubscriptionName)
	}
	if r.Cfg.Deadletter {
		return fmt.Sprintf("%s.deadletter", r.Cfg.TopicOrQueueName)
	}
	return fmt.Sprintf("%s", r.Cfg.TopicOrQueueName)
}

func (r *Receiver) Open() error {
	var err error

	if r.receiver != nil {
		return nil
	}
	r.log.Debugf("Open")
	client, err := r.azClient.azClient()
	if err != nil {
		return err
	}

	var receiver *azservicebus.Receiver
	if r.Cfg.SubscriptionName != "" {
		receiver, err = client.NewReceiverForSubscription(r.Cfg.TopicOrQueueName, r.Cfg.SubscriptionName, r.options)
	} else {
		receiver, err = client.NewReceiverForQueue(r.Cfg.TopicOrQueueName, r.options)
	}
	if err != nil {
		azerr := fmt.Errorf("%s: failed to open receiver: %w", r, NewAzbusError(err))
		r.log.Infof("%s", azerr)
		return azerr
	}

	r.receiver = receiver
	return nil
}

func (r *Receiver) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if r.receiver == nil {
		return nil
	}
	err := r.receiver.Close(ctx)
	r.receiver = nil
	if err != nil {
		azerr := fmt.Errorf("%s: Error closing receiver: %w", r, NewAzbusError(err))
		r.log.Infof("%s", azerr)
		return azerr
	}
	return nil
}

// NB: ALL disposition methods return nil so they can be used in return statements

// Abandon abandons message.
func (r *Receiver) Abandon(ctx context.Context, err error, msg *ReceivedMessage) error {
	ctx = context.WithoutCancel(ctx)
	log := r.log.FromContext(ctx)
	defer log.Close()

	span, ctx := opentracing.StartSpanFromContext(ctx, "Message.Abandon")
	defer span.Finish()
	log.Infof("Abandon Message on DeliveryCount %d: %v", msg.DeliveryCount, err)
	err1 := r.receiver.AbandonMessage(ctx, msg, nil)
	if err1 != nil {
		azerr := fmt.Errorf("Abandon Message failure: %w", NewAzbusError(err1))
		log.Infof("%s", azerr)
	}
	return nil
}

// Reschedule handles when a message should be deferred at a later time. There are a
// number of ways of doing this but it turns out that simply not doing anything causes
// azservicebus to resubmit the message 1 minute later. We keep the function signature with
// unused arguments for consistency and in case we need to implement more sophisticated
// algorithms in future.
func (r *Receiver) Reschedule(ctx context.Context, err error, msg *ReceivedMessage) error {
	ctx = context.WithoutCancel(ctx)
	log := r.log.FromContext(ctx)
	defer log.Close()

	span, _ := opentracing.StartSpanFromContext(ctx, "Message.Reschedule")
	defer span.Finish()
	log.Infof("Reschedule Message on DeliveryCount %d: %v", msg.DeliveryCount, err)
	return nil
}

// DeadLetter explicitly deadletters a message.
func (r *Receiver) DeadLetter(ctx context.Context, err error, msg *ReceivedMessage) error {
	ctx = context.WithoutCancel(ctx)
	log := r.log.FromContext(ctx)
	defer log.Close()

	span, ctx := opentracing.StartSpanFromContext(ctx, "Message.DeadLetter")
	defer span.Finish()
	log.Infof("DeadLetter Message: %v", err)
	options := azservicebus.DeadLetterOptions{
		Reason: to.Ptr(err.Error()),
	}
	err1 := r.receiver.DeadLetterMessage(ctx, msg, &options)
	if err1 != nil {
		azerr := fmt.Errorf("DeadLetter Message failure: %w", NewAzbusError(err1))
		log.Infof("%s", azerr)
	}
	return nil
}

func (r *Receiver) Complete(ctx context.Context, msg *ReceivedMessage) error {
	ctx = context.WithoutCancel(ctx)
	log := r.log.FromContext(ctx)
	defer log.Close()

	span, _ := opentracing.StartSpanFromContext(ctx, "Message.Complete")
	defer span.Finish()

	log.Infof("Complete Message")

	err := r.receiver.CompleteMessage(ctx, msg, nil)
	if err != nil {
		// If the completion fails then the message will get rescheduled, but it's effect will
		// have been made, so we could get duplication issues.
		azerr := fmt.Errorf("Complete: failed to settle message: %w", NewAzbusError(err))
		log.Infof("%s", azerr)
	}
	return nil
}
