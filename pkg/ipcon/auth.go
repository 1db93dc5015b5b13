package ipcon

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	mathrand "math/rand/v2"

	"github.com/tfp-protocol/tfp-go/pkg/connection"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// Authenticate runs the challenge-response handshake with the daemon
// using secret. It is queued like Connect and Disconnect.
func (c *IPConnection) Authenticate(secret string, onSuccess func(), onError func(err error)) {
	c.authenticate(secret, func(err error) {
		if err != nil {
			callError(onError, err)
			return
		}
		if onSuccess != nil {
			onSuccess()
		}
	})
}

// AuthenticateContext is a blocking Authenticate.
func (c *IPConnection) AuthenticateContext(ctx context.Context, secret string) error {
	_, err := c.await(ctx, func(onSuccess func(...any), onError func(error)) {
		c.authenticate(secret, doneFunc(onSuccess, onError))
	})
	return err
}

func (c *IPConnection) authenticate(secret string, done func(error)) {
	c.post(func() {
		if c.closed {
			done(wire.ErrNotConnected)
			return
		}
		c.pushTask(connection.TaskAuthenticate, func() {
			c.authenticateTask(secret, done)
		})
	}, func() {
		done(wire.ErrNotConnected)
	})
}

func (c *IPConnection) authenticateTask(secret string, done func(error)) {
	finish := func(err error) {
		if err != nil {
			c.debugLog("authentication failed", "error", err)
		}
		done(err)
		c.popTask()
	}

	if !isASCII(secret) {
		finish(wire.ErrNonASCIICharInSecret)
		return
	}

	if !c.nonceSet {
		c.nonce = randomUint32()
		c.nonceSet = true
	}

	c.brickd.getAuthenticationNonce(func(serverNonce []uint8) {
		clientNonce := make([]uint8, 4)
		binary.LittleEndian.PutUint32(clientNonce, c.nonce)
		c.nonce++

		digest := authDigest(secret, serverNonce, clientNonce)
		c.brickd.authenticate(clientNonce, digest, func() {
			finish(nil)
		}, finish)
	}, finish)
}

// authDigest is HMAC-SHA1(secret, serverNonce || clientNonce).
func authDigest(secret string, serverNonce, clientNonce []uint8) []uint8 {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(serverNonce)
	mac.Write(clientNonce)
	return mac.Sum(nil)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 0x7F {
			return false
		}
	}
	return true
}

// randomUint32 seeds the client nonce. math/rand is only used when the
// system source fails.
func randomUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err == nil {
		return binary.LittleEndian.Uint32(b[:])
	}
	return mathrand.Uint32()
}
