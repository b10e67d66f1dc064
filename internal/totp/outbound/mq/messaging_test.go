package mq_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/pkg/messaging"
	"github.com/shandysiswandi/otpguard/internal/shared/event"
	"github.com/shandysiswandi/otpguard/internal/totp/entity"
	"github.com/shandysiswandi/otpguard/internal/totp/outbound/mq"
)

func TestMessaging_PublishSecurityEvent(t *testing.T) {
	t.Parallel()

	// Arrange
	rec := messaging.NewRecorder()
	m := mq.NewMessaging(rec, instrument.NewNoop(), "")
	ctx := instrument.SetCorrelationID(context.Background(), "cid-42")

	// Act
	err := m.PublishSecurityEvent(ctx, entity.SecurityEvent{
		Kind:       entity.EventReplayRejected,
		UserID:     "alice",
		KeyID:      "k1",
		Counter:    1000,
		OccurredAt: time.Unix(30_000, 0),
	})

	// Assert
	require.NoError(t, err)

	msgs := rec.Messages(event.TOTPSecurityDestination)
	require.Len(t, msgs, 1)
	assert.Equal(t, "cID", msgs[0].Headers[0].Key)
	assert.Equal(t, "cid-42", string(msgs[0].Headers[0].Value))

	var got event.TOTPSecurityMessage
	require.NoError(t, json.Unmarshal(msgs[0].Body, &got))
	assert.Equal(t, event.TOTPSecurityMessage{
		Kind:       "totp.replay_rejected",
		UserID:     "alice",
		KeyID:      "k1",
		Counter:    1000,
		OccurredAt: 30_000,
	}, got)
}

func TestMessaging_CustomSubject(t *testing.T) {
	t.Parallel()

	rec := messaging.NewRecorder()
	m := mq.NewMessaging(rec, instrument.NewNoop(), "audit.totp")

	require.NoError(t, m.PublishSecurityEvent(context.Background(), entity.SecurityEvent{Kind: entity.EventUnknownKey}))
	assert.Len(t, rec.Messages("audit.totp"), 1)
}
