package consent

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

const webhookTimeout = 10 * time.Second

// blockedNetworks are address ranges a callback URL must never resolve
// to. Delivering consent results into these would let a malicious dApp
// use the wallet as a proxy into the local network.
var blockedNetworks = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.2.0/24",
	"192.168.0.0/16",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
}

var blockedCIDRs []*net.IPNet

func init() {
	for _, cidr := range blockedNetworks {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid blocked network " + cidr)
		}
		blockedCIDRs = append(blockedCIDRs, network)
	}
}

// ValidateCallbackURL checks that a dApp callback URL is safe to post
// consent results to. origin is the hostname of the requesting dApp;
// the callback host must be the origin itself or one of its
// subdomains.
func ValidateCallbackURL(rawURL, origin string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return walleterr.Wrap(walleterr.ErrValidation, "invalid callback URL: %v", err)
	}

	if parsed.Scheme != "https" {
		return walleterr.WithSuggestion(
			walleterr.Wrap(walleterr.ErrValidation, "callback URL must use https, got %q", parsed.Scheme),
			"callbacks are only delivered over HTTPS",
		)
	}

	host := parsed.Hostname()
	if host == "" {
		return walleterr.Wrap(walleterr.ErrValidation, "callback URL has no host")
	}
	if !strings.Contains(host, ".") {
		return walleterr.Wrap(walleterr.ErrValidation, "callback host %q is not a fully qualified name", host)
	}

	// A literal IP in the URL is checked directly. A hostname is
	// resolved and every address it maps to must be public.
	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return walleterr.Wrap(walleterr.ErrValidation, "callback address %s is not publicly routable", ip)
		}
	} else {
		addrs, err := net.LookupIP(host)
		if err != nil {
			return walleterr.Wrap(walleterr.ErrNetwork, "resolving callback host %s: %v", host, err)
		}
		for _, addr := range addrs {
			if isBlockedIP(addr) {
				return walleterr.Wrap(walleterr.ErrValidation, "callback host %s resolves to non-public address %s", host, addr)
			}
		}
	}

	if origin != "" && !hostMatchesOrigin(host, origin) {
		return walleterr.Wrap(walleterr.ErrValidation, "callback host %s does not belong to origin %s", host, origin)
	}

	return nil
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedCIDRs {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// hostMatchesOrigin reports whether host is origin itself or a
// subdomain of it.
func hostMatchesOrigin(host, origin string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	origin = strings.ToLower(strings.TrimSuffix(origin, "."))
	if host == origin {
		return true
	}
	return strings.HasSuffix(host, "."+origin)
}

// WebhookSender delivers signed consent results to dApp callbacks.
type WebhookSender struct {
	httpClient *http.Client
	signingKey []byte
}

// NewWebhookSender creates a sender. Payloads are signed with an
// HMAC-SHA256 over the body using signingKey so the dApp can verify
// the result came from this wallet session.
func NewWebhookSender(signingKey []byte) *WebhookSender {
	return &WebhookSender{
		httpClient: &http.Client{Timeout: webhookTimeout},
		signingKey: signingKey,
	}
}

// Send validates the callback URL and posts the payload as JSON. The
// URL is re-validated at delivery time because DNS may have changed
// since the request was registered.
func (w *WebhookSender) Send(ctx context.Context, callbackURL, origin string, payload interface{}) error {
	if err := ValidateCallbackURL(callbackURL, origin); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return walleterr.Wrap(err, "marshaling webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return walleterr.Wrap(err, "creating webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	mac := hmac.New(sha256.New, w.signingKey)
	mac.Write(body)
	req.Header.Set("X-Verso-Signature", hex.EncodeToString(mac.Sum(nil)))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return walleterr.Wrap(walleterr.ErrNetwork, "delivering webhook: %v", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return walleterr.Wrap(walleterr.ErrNetwork, "webhook returned status %d", resp.StatusCode)
	}
	return nil
}
