package sponsorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StateMaxAge is the maximum age of a signed state token.
const StateMaxAge = time.Hour

// State is the payload carried through a provider's OAuth redirect.
type State struct {
	UserID   string `json:"userId"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"iat"`
}

// StateCodec encodes and decodes OAuth state tokens. If a secret is set then
// tokens are signed with HMAC-SHA256 and expire after StateMaxAge, otherwise
// the token is the plain base64url encoding of the State.
type StateCodec struct {
	secret []byte
	now    func() time.Time
}

var stateEncoding = base64.RawURLEncoding

// NewStateCodec returns a StateCodec signing with the given secret, which may
// be empty.
func NewStateCodec(secret []byte, now func() time.Time) StateCodec {
	if now == nil {
		now = time.Now
	}
	return StateCodec{
		secret: secret,
		now:    now,
	}
}

func (c StateCodec) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return stateEncoding.EncodeToString(mac.Sum(nil))
}

// Encode returns the state token for the given user ID.
func (c StateCodec) Encode(userID string) (string, error) {
	b, err := json.Marshal(State{
		UserID:   userID,
		Nonce:    uuid.NewString(),
		IssuedAt: c.now().Unix(),
	})

	if err != nil {
		return "", err
	}

	tok := stateEncoding.EncodeToString(b)

	if len(c.secret) == 0 {
		return tok, nil
	}
	return tok + "." + c.sign(tok), nil
}

// Decode decodes the given state token. ErrInvalidState is returned if the
// token is malformed, has an invalid signature, has expired, or carries no
// user ID.
func (c StateCodec) Decode(tok string) (State, error) {
	var st State

	payload := tok

	if len(c.secret) > 0 {
		parts := strings.SplitN(tok, ".", 2)

		if len(parts) != 2 {
			return st, ErrInvalidState
		}

		payload = parts[0]

		if !hmac.Equal([]byte(parts[1]), []byte(c.sign(payload))) {
			return st, ErrInvalidState
		}
	}

	b, err := stateEncoding.DecodeString(payload)

	if err != nil {
		return st, ErrInvalidState
	}

	if err := json.Unmarshal(b, &st); err != nil {
		return st, ErrInvalidState
	}

	if st.UserID == "" {
		return st, ErrInvalidState
	}

	if len(c.secret) > 0 {
		issued := time.Unix(st.IssuedAt, 0)

		if c.now().Sub(issued) > StateMaxAge || issued.After(c.now().Add(time.Minute)) {
			return st, ErrInvalidState
		}
	}
	return st, nil
}
