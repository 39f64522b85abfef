package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config holds the broker connection parameters.
type Config struct {
	Broker   string
	Port     int
	User     string
	Pass     string
	ClientID string

	// WillTopic and WillPayload set the broker-side last-will message so
	// consumers see the device go offline. Optional.
	WillTopic   string
	WillPayload []byte
}

type subscription struct {
	filter string
	cb     func(topic string, payload []byte)
}

// RealPublisher talks to an actual broker through paho. It auto-reconnects
// and replays its subscriptions on every (re)connect.
type RealPublisher struct {
	client paho.Client
	log    *zap.SugaredLogger

	mu   sync.Mutex
	subs []subscription
}

// NewRealPublisher connects to the broker. onState, if non-nil, is called
// with the connection state on every connect and loss.
func NewRealPublisher(cfg Config, log *zap.SugaredLogger, onState func(up bool)) (*RealPublisher, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "sprinkler-" + uuid.NewString()[:8]
	}

	p := &RealPublisher{log: log}

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)).
		SetClientID(clientID).
		SetUsername(cfg.User).
		SetPassword(cfg.Pass).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c paho.Client) {
			log.Infow("mqtt connected", "client_id", clientID)
			if onState != nil {
				onState(true)
			}
			p.resubscribe()
		}).
		SetConnectionLostHandler(func(c paho.Client, err error) {
			log.Warnw("mqtt connection lost", "error", err)
			if onState != nil {
				onState(false)
			}
		})

	if cfg.WillTopic != "" {
		opts.SetBinaryWill(cfg.WillTopic, cfg.WillPayload, 0, true)
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Publish sends a payload at QoS 0.
func (p *RealPublisher) Publish(topic string, payload []byte, retained bool) error {
	token := p.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers the filter now and again after every reconnect.
func (p *RealPublisher) Subscribe(filter string, cb func(topic string, payload []byte)) error {
	p.mu.Lock()
	p.subs = append(p.subs, subscription{filter: filter, cb: cb})
	p.mu.Unlock()
	return p.subscribe(filter, cb)
}

func (p *RealPublisher) subscribe(filter string, cb func(topic string, payload []byte)) error {
	token := p.client.Subscribe(filter, 1, func(c paho.Client, m paho.Message) {
		cb(m.Topic(), m.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout on %s", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

func (p *RealPublisher) resubscribe() {
	p.mu.Lock()
	subs := make([]subscription, len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, s := range subs {
		if err := p.subscribe(s.filter, s.cb); err != nil {
			p.log.Errorw("resubscribe failed", "filter", s.filter, "error", err)
		}
	}
}

// IsConnected reports the paho connection state.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
