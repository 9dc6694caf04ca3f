package controllers

import (
	"bytes"
	"crypto/ed25519"
	"io"
	"net/http"
	"strconv"
	"time"

	"option-ledger/interfaces"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
	"github.com/patrickmn/go-cache"
)

const (
	HeaderCallerKey       = "X-Caller-Key"
	HeaderCallerSignature = "X-Caller-Signature"
	HeaderCallerTimestamp = "X-Caller-Timestamp"
	HeaderCallerNonce     = "X-Caller-Nonce"

	// DefaultSignatureWindow is how far a request timestamp may drift from the server clock
	DefaultSignatureWindow = time.Minute

	maxNonceLength   = 64
	callerContextKey = "caller"
)

// SigningMessage is the byte string a caller signs for one request
func SigningMessage(method, path string, timestamp int64, nonce string, body []byte) []byte {
	var msg bytes.Buffer
	msg.WriteString(method)
	msg.WriteByte('\n')
	msg.WriteString(path)
	msg.WriteByte('\n')
	msg.WriteString(strconv.FormatInt(timestamp, 10))
	msg.WriteByte('\n')
	msg.WriteString(nonce)
	msg.WriteByte('\n')
	msg.Write(body)
	return msg.Bytes()
}

// SignRequest returns the base58 signature header value for a request
func SignRequest(privateKey ed25519.PrivateKey, method, path string, timestamp int64, nonce string, body []byte) string {
	return base58.Encode(ed25519.Sign(privateKey, SigningMessage(method, path, timestamp, nonce, body)))
}

// RequireSignature authenticates the caller by verifying an ed25519 signature
// over the method, path, timestamp, nonce and body against the key in X-Caller-Key.
// Timestamps outside window are rejected, and each signature is accepted once.
func RequireSignature(clock interfaces.Clock, window time.Duration) gin.HandlerFunc {
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	if window <= 0 {
		window = DefaultSignatureWindow
	}

	// A signature is only replayable while its timestamp is inside the window
	seen := cache.New(2*window, 2*window)

	return func(c *gin.Context) {
		key, err := interfaces.ParsePublicKey(c.GetHeader(HeaderCallerKey))
		if err != nil {
			abortUnauthorized(c, "missing or malformed "+HeaderCallerKey)
			return
		}

		sig, err := base58.Decode(c.GetHeader(HeaderCallerSignature))
		if err != nil || len(sig) != ed25519.SignatureSize {
			abortUnauthorized(c, "missing or malformed "+HeaderCallerSignature)
			return
		}

		timestamp, err := strconv.ParseInt(c.GetHeader(HeaderCallerTimestamp), 10, 64)
		if err != nil {
			abortUnauthorized(c, "missing or malformed "+HeaderCallerTimestamp)
			return
		}
		drift := clock.Now().Sub(time.Unix(timestamp, 0))
		if drift > window || drift < -window {
			abortUnauthorized(c, "request timestamp outside the accepted window")
			return
		}

		nonce := c.GetHeader(HeaderCallerNonce)
		if nonce == "" || len(nonce) > maxNonceLength {
			abortUnauthorized(c, "missing or malformed "+HeaderCallerNonce)
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				abortUnauthorized(c, "failed to read request body")
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		msg := SigningMessage(c.Request.Method, c.Request.URL.Path, timestamp, nonce, body)
		if !ed25519.Verify(ed25519.PublicKey(key[:]), msg, sig) {
			abortUnauthorized(c, "signature verification failed")
			return
		}

		// Add fails when the key is present, which makes check-and-record atomic
		if err := seen.Add(base58.Encode(sig), struct{}{}, cache.DefaultExpiration); err != nil {
			abortUnauthorized(c, "request signature already used")
			return
		}

		c.Set(callerContextKey, key)
		c.Next()
	}
}

// TrustCallerHeader accepts X-Caller-Key without a signature. Development only.
func TrustCallerHeader() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := interfaces.ParsePublicKey(c.GetHeader(HeaderCallerKey))
		if err != nil {
			abortUnauthorized(c, "missing or malformed "+HeaderCallerKey)
			return
		}
		c.Set(callerContextKey, key)
		c.Next()
	}
}

// CallerFrom returns the caller identity established by the auth middleware
func CallerFrom(c *gin.Context) (interfaces.PublicKey, bool) {
	v, ok := c.Get(callerContextKey)
	if !ok {
		return interfaces.PublicKey{}, false
	}
	key, ok := v.(interfaces.PublicKey)
	return key, ok
}

func abortUnauthorized(c *gin.Context, details string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "Unauthorized",
		"details": details,
	})
}
