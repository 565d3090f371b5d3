package credential

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
	"google.golang.org/protobuf/encoding/protowire"
)

const signedVersion = 0x01

// Ticket field numbers of the signed payload.
const (
	fieldSeed      protowire.Number = 1
	fieldItem      protowire.Number = 2
	fieldVariation protowire.Number = 3
	fieldSubEvent  protowire.Number = 4
	fieldValidFrom protowire.Number = 5
	fieldValidTo   protowire.Number = 6
)

var errMalformedTicket = errors.New("malformed signed ticket")

// SignedTicketVerifier verifies "sig1" credentials: the reversed base64 of
// a version byte, two big-endian uint16 lengths, a protobuf Ticket payload
// and an Ed25519 signature over that payload.
type SignedTicketVerifier struct{}

// signedTicket is the decoded payload.
type signedTicket struct {
	Seed       string
	Item       int64
	Variation  int64
	SubEvent   int64
	ValidFrom  int64
	ValidUntil int64
}

func (SignedTicketVerifier) Verify(raw string, lc ListContext) Verification {
	secret := strings.TrimSpace(raw)
	payload, signature, err := splitSigned(secret)
	if err != nil {
		return Verification{Status: Invalid}
	}
	if !verifyAny(lc.PublicKeys, payload, signature) {
		return Verification{Status: Invalid}
	}
	t, err := decodeTicket(payload)
	if err != nil {
		return Verification{Status: Invalid}
	}

	v := Verification{Status: Valid, Secret: secret, ItemID: t.Item}
	if t.Variation != 0 {
		id := t.Variation
		v.VariationID = &id
	}
	if t.SubEvent != 0 {
		id := t.SubEvent
		v.SubEventID = &id
	}
	if t.ValidFrom != 0 {
		from := time.Unix(t.ValidFrom, 0).UTC()
		v.ValidFrom = &from
	}
	if t.ValidUntil != 0 {
		until := time.Unix(t.ValidUntil, 0).UTC()
		v.ValidUntil = &until
	}

	switch {
	case !lc.List.CoversItem(v.ItemID):
		v.Status = InvalidProduct
	case !lc.List.CoversSubEvent(v.SubEventID):
		v.Status = InvalidSubEvent
	case lc.Direction != models.DirectionExit && v.ValidFrom != nil && lc.Now.Before(*v.ValidFrom):
		v.Status = InvalidTime
	case lc.Direction != models.DirectionExit && v.ValidUntil != nil && lc.Now.After(*v.ValidUntil):
		v.Status = InvalidTime
	}
	return v
}

func reverse(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

func splitSigned(secret string) (payload, signature []byte, err error) {
	data, err := base64.StdEncoding.DecodeString(reverse(secret))
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(reverse(secret))
		if err != nil {
			return nil, nil, errMalformedTicket
		}
	}
	if len(data) < 5 || data[0] != signedVersion {
		return nil, nil, errMalformedTicket
	}
	payloadLen := int(binary.BigEndian.Uint16(data[1:3]))
	sigLen := int(binary.BigEndian.Uint16(data[3:5]))
	if len(data) != 5+payloadLen+sigLen {
		return nil, nil, errMalformedTicket
	}
	return data[5 : 5+payloadLen], data[5+payloadLen:], nil
}

// parsePublicKey accepts a PEM encoded Ed25519 key, or the base64 of one.
func parsePublicKey(key string) (ed25519.PublicKey, error) {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, "-----BEGIN") {
		decoded, err := base64.StdEncoding.DecodeString(key)
		if err != nil {
			return nil, err
		}
		key = string(decoded)
	}
	block, _ := pem.Decode([]byte(key))
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	edKey, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("not an Ed25519 key")
	}
	return edKey, nil
}

func verifyAny(keys []string, payload, signature []byte) bool {
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	for _, k := range keys {
		pub, err := parsePublicKey(k)
		if err != nil {
			continue
		}
		if ed25519.Verify(pub, payload, signature) {
			return true
		}
	}
	return false
}

func decodeTicket(b []byte) (signedTicket, error) {
	var t signedTicket
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return t, errMalformedTicket
		}
		b = b[n:]

		switch {
		case num == fieldSeed && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return t, errMalformedTicket
			}
			t.Seed = string(v)
			b = b[n:]
		case num >= fieldItem && num <= fieldValidTo && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return t, errMalformedTicket
			}
			switch num {
			case fieldItem:
				t.Item = int64(v)
			case fieldVariation:
				t.Variation = int64(v)
			case fieldSubEvent:
				t.SubEvent = int64(v)
			case fieldValidFrom:
				t.ValidFrom = int64(v)
			case fieldValidTo:
				t.ValidUntil = int64(v)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return t, errMalformedTicket
			}
			b = b[n:]
		}
	}
	if t.Seed == "" || t.Item == 0 {
		return t, errMalformedTicket
	}
	return t, nil
}
