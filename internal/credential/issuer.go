package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoomNamespace prefixes every room name. The persona resolver splits room
// names on dashes and checks this literal, so changing it (or the segment
// order produced by RoomName) breaks persona resolution for live sessions.
const RoomNamespace = "axtra"

var ErrNotConfigured = errors.New("credential signing not configured")

// Grant is a signed, time-boxed permission to join one named room with
// publish and subscribe rights. It is consumed once by the transport and
// never persisted.
type Grant struct {
	Token    string `json:"token"`
	URL      string `json:"url"`
	RoomName string `json:"room_name"`
}

type videoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video videoGrant `json:"video"`
}

// Issuer mints join credentials for the realtime transport. It is stateless;
// every call produces a fresh token because expiry is relative to issuance.
type Issuer struct {
	apiKey    string
	apiSecret string
	url       string
	ttl       time.Duration
	now       func() time.Time
}

func NewIssuer(apiKey, apiSecret, url string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		apiKey:    strings.TrimSpace(apiKey),
		apiSecret: strings.TrimSpace(apiSecret),
		url:       strings.TrimSpace(url),
		ttl:       ttl,
		now:       time.Now,
	}
}

// Configured reports whether signing material and a transport endpoint exist.
func (i *Issuer) Configured() bool {
	return i.apiKey != "" && i.apiSecret != "" && i.url != ""
}

// Issue signs a join grant scoping identity to roomName.
func (i *Issuer) Issue(roomName, identity string) (Grant, error) {
	if !i.Configured() {
		return Grant{}, ErrNotConfigured
	}
	if strings.TrimSpace(roomName) == "" {
		return Grant{}, fmt.Errorf("room name is required")
	}
	if strings.TrimSpace(identity) == "" {
		return Grant{}, fmt.Errorf("participant identity is required")
	}

	now := i.now().UTC()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Name: identity,
		Video: videoGrant{
			Room:         roomName,
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.apiSecret))
	if err != nil {
		return Grant{}, fmt.Errorf("sign credential: %w", err)
	}

	return Grant{Token: token, URL: i.url, RoomName: roomName}, nil
}

// RoomName builds the session room name for a scenario and trainee. Format:
// axtra-<scenarioID>-<userID>-<unixMillis>.
func RoomName(scenarioID, userID string) string {
	return fmt.Sprintf("%s-%s-%s-%d", RoomNamespace, scenarioID, userID, time.Now().UnixMilli())
}
