package azbus

// Azure service bus transport
//
// Abstracts away all the Azure plumbing and replaces with simpler interface.
//
// Usage: Sending message(s):
//
//	sender := azbus.NewSender(log, azbus.SenderConfig{
//		ConnectionString: "blah-blah-blah...",
//		TopicOrQueueName: "userinterface",
//	})
//	defer sender.Close(ctx)
//	err := sender.Send(ctx, azbus.NewOutMessage([]byte("Hello World")))
//	...... more send messages if required.
//
// Receiving messages: a Receiver is handed to the pump package, which runs
// the receive loop, renews message locks and settles each message from the
// handler's return value:
//
//	receiver := azbus.NewReceiver(log, azbus.ReceiverConfig{
//		ConnectionString: "blah-blah-blah...",
//		TopicOrQueueName: "userinterface",
//		SubscriptionName: "xxxx",
//	})
//	p := pump.New(log, pump.WithAzbusReceiver(receiver))
//	err := p.RegisterMessageHandler(ctx, func(ctx context.Context, msg *azbus.ReceivedMessage) error {
//		// do stuff - a nil return completes the message, an error abandons it
//		return nil
//	})
//
// Errors from this package wrap sentinel errors that can be tested with
// errors.Is:
//
//	if errors.Is(err, azbus.ErrConnectionLost) {
//		// log transient error - maybe sleep and retry..
//	}
