package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/transitbeacon/beacon/device/internal/config"
)

// dialTimeout bounds how long a check may block on an unreachable broker.
const dialTimeout = 10 * time.Second

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// expiringDays is the window in which a certificate counts as expiring.
const expiringDays = 30

// CertStatus describes the broker's TLS leaf certificate.
type CertStatus struct {
	Broker   string `json:"broker"`
	Status   string `json:"status"`
	Issuer   string `json:"issuer,omitempty"`
	NotAfter string `json:"not_after,omitempty"` // RFC3339
	DaysLeft int    `json:"days_left"`
}

// tlsSchemes are the paho URL schemes that use TLS, with their default port.
var tlsSchemes = map[string]string{
	"ssl":   "8883",
	"tls":   "8883",
	"mqtts": "8883",
	"tcps":  "8883",
	"wss":   "443",
}

// Check dials the broker over TLS and returns the status of its leaf
// certificate. Returns nil for plain-TCP brokers; there is nothing to inspect.
func Check(ctx context.Context, broker config.BrokerConfig) *CertStatus {
	return check(ctx, broker, time.Now())
}

func check(ctx context.Context, broker config.BrokerConfig, now time.Time) *CertStatus {
	u, err := url.Parse(broker.URL)
	if err != nil {
		return nil
	}
	defaultPort, ok := tlsSchemes[u.Scheme]
	if !ok {
		return nil
	}

	cs := &CertStatus{Broker: broker.URL}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, defaultPort)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: broker.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peerCerts[0]
	daysLeft := leaf.NotAfter.Sub(now).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))
	cs.Status = classify(daysLeft)
	return cs
}

func classify(daysLeft float64) string {
	switch {
	case daysLeft <= 0:
		return StatusExpired
	case daysLeft <= expiringDays:
		return StatusExpiring
	default:
		return StatusValid
	}
}
