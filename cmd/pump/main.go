// Command pump runs the message/session pump as a standalone service: it
// wires a receiver or session acceptor from the environment, registers a
// handler that logs and completes every message, and serves prometheus
// metrics over HTTP.
package main

import (
	"context"
	"os"

	"github.com/datatrails/go-datatrails-pump/azbus"
	"github.com/datatrails/go-datatrails-pump/environment"
	"github.com/datatrails/go-datatrails-pump/httpserver"
	"github.com/datatrails/go-datatrails-pump/logger"
	"github.com/datatrails/go-datatrails-pump/metrics"
	"github.com/datatrails/go-datatrails-pump/pump"
	"github.com/datatrails/go-datatrails-pump/startup"
)

const serviceName = "pump"

func main() {
	logger.New(environment.GetLogLevel())
	defer logger.OnExit()
	log := logger.Sugar

	connectionString := environment.GetOrFatal("AZURE_SERVICEBUS_CONNECTION_STRING")
	topicOrQueue := environment.GetOrFatal("AZURE_SERVICEBUS_TOPIC_OR_QUEUE")
	subscription := os.Getenv("AZURE_SERVICEBUS_SUBSCRIPTION")
	sessionful := subscription != "" && environment.GetTruthyOrFatal("PUMP_SESSIONFUL")

	m := metrics.NewFromEnvironment(log, serviceName)

	cfg := pump.ConfigFromEnvironment()
	opts := cfg.Options()
	if m != nil {
		opts = append(opts, pump.WithMetrics(m))
	}

	p := pump.New(log, append(opts, sessionOrMessageOption(log, cfg, connectionString, topicOrQueue, subscription, sessionful)...)...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sessionful {
		if err := p.RegisterSessionHandler(ctx, handleSessionMessage(log), handleSessionClose(log)); err != nil {
			log.Panicf("RegisterSessionHandler: %v", err)
		}
	} else {
		if err := p.RegisterMessageHandler(ctx, handleMessage(log)); err != nil {
			log.Panicf("RegisterMessageHandler: %v", err)
		}
	}

	listeners := []startup.Listener{}
	if m != nil && m.Port() != "" {
		listeners = append(listeners, httpserver.New(log, serviceName, m.Port(), m.NewPromHandler()))
	}

	l := startup.NewListeners(log, serviceName, startup.WithListeners(listeners...))
	if err := l.Listen(); err != nil {
		log.Panicf("Listen: %v", err)
	}

	if err := p.Close(context.Background()); err != nil {
		log.Infof("pump close: %s", err)
	}
}

func sessionOrMessageOption(log pump.Logger, cfg pump.Config, connectionString, topicOrQueue, subscription string, sessionful bool) []pump.Option {
	if sessionful {
		acceptor := azbus.NewSessionAcceptor(log, azbus.SessionAcceptorConfig{
			ConnectionString: connectionString,
			TopicOrQueueName: topicOrQueue,
			SubscriptionName: subscription,
			ReceiveMode:      cfg.ReceiveMode,
		})
		return []pump.Option{pump.WithAzbusSessionAcceptor(acceptor)}
	}

	receiver := azbus.NewReceiver(log, azbus.ReceiverConfig{
		ConnectionString: connectionString,
		TopicOrQueueName: topicOrQueue,
		SubscriptionName: subscription,
		ReceiveMode:      cfg.ReceiveMode,
	})
	return []pump.Option{pump.WithAzbusReceiver(receiver)}
}

func handleMessage(log pump.Logger) pump.MessageHandlerFunc {
	return func(ctx context.Context, msg *azbus.ReceivedMessage) error {
		log.Debugf("message: %s", msg.MessageID)
		return nil
	}
}

func handleSessionMessage(log pump.Logger) pump.SessionMessageHandlerFunc {
	return func(ctx context.Context, session pump.SessionInfo, msg *azbus.ReceivedMessage) error {
		log.Debugf("session %s message: %s", session.SessionID(), msg.MessageID)
		return nil
	}
}

func handleSessionClose(log pump.Logger) pump.SessionCloseFunc {
	return func(ctx context.Context, session pump.SessionInfo) error {
		log.Debugf("session %s drained", session.SessionID())
		return nil
	}
}
