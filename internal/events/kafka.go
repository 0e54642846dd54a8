package events

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/KafClaw/PairClaw/internal/config"
)

// tlsConfig returns nil for the plaintext protocols.
func tlsConfig(cfg config.EventsConfig, serverName string) (*tls.Config, error) {
	switch cfg.SecurityProtocol {
	case "", "PLAINTEXT", "SASL_PLAINTEXT":
		return nil, nil
	case "SSL", "SASL_SSL":
	default:
		return nil, fmt.Errorf("unsupported security protocol %q", cfg.SecurityProtocol)
	}
	conf := &tls.Config{ServerName: serverName, MinVersion: tls.VersionTLS12}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("load CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("bad CA PEM")
		}
		conf.RootCAs = pool
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		conf.Certificates = []tls.Certificate{cert}
	}
	return conf, nil
}

// saslMechanism returns nil when the protocol does not authenticate.
func saslMechanism(cfg config.EventsConfig) (sasl.Mechanism, error) {
	if cfg.SecurityProtocol != "SASL_PLAINTEXT" && cfg.SecurityProtocol != "SASL_SSL" {
		return nil, nil
	}
	switch cfg.SASLMechanism {
	case "PLAIN":
		return plain.Mechanism{Username: cfg.SASLUsername, Password: cfg.SASLPassword}, nil
	case "SCRAM-SHA-256":
		return scram.Mechanism(scram.SHA256, cfg.SASLUsername, cfg.SASLPassword)
	case "SCRAM-SHA-512":
		return scram.Mechanism(scram.SHA512, cfg.SASLUsername, cfg.SASLPassword)
	case "":
		return nil, fmt.Errorf("missing sasl mechanism for %s", cfg.SecurityProtocol)
	default:
		return nil, fmt.Errorf("unsupported sasl mechanism %q", cfg.SASLMechanism)
	}
}

// Transport builds the writer transport with TLS and SASL applied.
func Transport(cfg config.EventsConfig) (*kafka.Transport, error) {
	tlsConf, err := tlsConfig(cfg, "")
	if err != nil {
		return nil, fmt.Errorf("events: tls: %w", err)
	}
	mech, err := saslMechanism(cfg)
	if err != nil {
		return nil, fmt.Errorf("events: sasl: %w", err)
	}
	return &kafka.Transport{
		DialTimeout: 8 * time.Second,
		TLS:         tlsConf,
		SASL:        mech,
	}, nil
}

// Dialer builds a connection dialer for one broker host.
func Dialer(cfg config.EventsConfig, host string) (*kafka.Dialer, error) {
	tlsConf, err := tlsConfig(cfg, host)
	if err != nil {
		return nil, fmt.Errorf("events: tls: %w", err)
	}
	mech, err := saslMechanism(cfg)
	if err != nil {
		return nil, fmt.Errorf("events: sasl: %w", err)
	}
	return &kafka.Dialer{
		Timeout:       8 * time.Second,
		DualStack:     true,
		TLS:           tlsConf,
		SASLMechanism: mech,
	}, nil
}

// BrokerCheck is the reachability of one broker.
type BrokerCheck struct {
	Broker     string
	OK         bool
	TopicFound bool
	Partitions int
	Detail     string
	Duration   time.Duration
}

// CheckBrokers dials every configured broker, checks the API handshake and
// looks the topic up. It returns an error only when the configuration is unusable.
func CheckBrokers(ctx context.Context, cfg config.EventsConfig) ([]BrokerCheck, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, fmt.Errorf("events: no kafka brokers configured")
	}
	results := make([]BrokerCheck, 0, len(brokers))
	for _, addr := range brokers {
		results = append(results, checkBroker(ctx, cfg, addr))
	}
	return results, nil
}

func checkBroker(ctx context.Context, cfg config.EventsConfig, addr string) (res BrokerCheck) {
	res.Broker = addr
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		res.Detail = fmt.Sprintf("bad address: %v", err)
		return res
	}
	dialer, err := Dialer(cfg, host)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		res.Detail = fmt.Sprintf("broker dial failed: %v", err)
		return res
	}
	defer conn.Close()
	if _, err := conn.ApiVersions(); err != nil {
		res.Detail = fmt.Sprintf("ApiVersions failed: %v", err)
		return res
	}
	parts, err := conn.ReadPartitions()
	if err != nil {
		res.Detail = fmt.Sprintf("read partitions: %v", err)
		return res
	}
	for _, p := range parts {
		if p.Topic == cfg.Topic {
			res.TopicFound = true
			res.Partitions++
		}
	}
	res.OK = true
	if res.TopicFound {
		res.Detail = fmt.Sprintf("topic %s has %d partition(s)", cfg.Topic, res.Partitions)
	} else {
		res.Detail = fmt.Sprintf("topic %s not found, it is created on first publish", cfg.Topic)
	}
	return res
}
