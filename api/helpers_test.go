package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/planquant/collab/auth"
)

// stubValidator accepts any token present in its map
type stubValidator struct {
	identities map[string]*auth.Identity
	delay      time.Duration
}

func (v *stubValidator) ValidateCredential(ctx context.Context, token string) (*auth.Identity, error) {
	if v.delay > 0 {
		select {
		case <-time.After(v.delay):
		case <-ctx.Done():
			return nil, &auth.Error{Reason: "validation timed out", Err: ctx.Err()}
		}
	}
	if identity, ok := v.identities[token]; ok {
		return identity, nil
	}
	return nil, &auth.Error{Reason: "invalid or expired token"}
}

func testIdentity(name string) *auth.Identity {
	return &auth.Identity{
		UserID:      "user-" + name,
		Email:       name + "@example.com",
		DisplayName: name,
		Role:        "estimator",
	}
}

func newTestEngine(tokens ...string) (*Engine, *stubValidator) {
	validator := &stubValidator{identities: make(map[string]*auth.Identity)}
	for _, token := range tokens {
		validator.identities[token] = testIdentity(token)
	}
	opts := DefaultOptions()
	opts.SendBufferSize = 32
	return NewEngine(validator, opts), validator
}

// nextFrame pops one already-delivered frame from a session's outbound
// buffer. Delivery is synchronous with respect to the hub call that caused
// it, so no waiting is involved.
func nextFrame(t *testing.T, s *Session) Envelope {
	t.Helper()
	select {
	case raw, ok := <-s.Outbound():
		require.True(t, ok, "outbound stream closed")
		var envelope Envelope
		require.NoError(t, json.Unmarshal(raw, &envelope))
		return envelope
	default:
		t.Fatal("expected a frame, outbound buffer is empty")
		return Envelope{}
	}
}

// drainFrames empties a session's outbound buffer and returns the envelopes
func drainFrames(t *testing.T, s *Session) []Envelope {
	t.Helper()
	var frames []Envelope
	for {
		select {
		case raw, ok := <-s.Outbound():
			if !ok {
				return frames
			}
			var envelope Envelope
			require.NoError(t, json.Unmarshal(raw, &envelope))
			frames = append(frames, envelope)
		default:
			return frames
		}
	}
}

func decodePayload[T any](t *testing.T, envelope Envelope) T {
	t.Helper()
	var payload T
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	return payload
}

func requireNoFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case raw := <-s.Outbound():
		var envelope Envelope
		_ = json.Unmarshal(raw, &envelope)
		t.Fatalf("expected no frame, got %s", envelope.Event)
	default:
	}
}

func eventNames(frames []Envelope) []string {
	names := make([]string, len(frames))
	for i, f := range frames {
		names[i] = f.Event
	}
	return names
}
