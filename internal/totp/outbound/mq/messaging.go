package mq

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/codes"

	"github.com/shandysiswandi/otpguard/internal/pkg/instrument"
	"github.com/shandysiswandi/otpguard/internal/pkg/messaging"
	"github.com/shandysiswandi/otpguard/internal/shared/event"
	"github.com/shandysiswandi/otpguard/internal/totp/entity"
)

const keyOfCorrelationID string = "cID"

type Messaging struct {
	client  messaging.Publisher
	ins     instrument.Instrumentation
	subject string
}

func NewMessaging(client messaging.Publisher, ins instrument.Instrumentation, subject string) *Messaging {
	if subject == "" {
		subject = event.TOTPSecurityDestination
	}
	return &Messaging{client: client, ins: ins, subject: subject}
}

func (m *Messaging) PublishSecurityEvent(ctx context.Context, ev entity.SecurityEvent) error {
	ctx, span := m.ins.Tracer("totp.outbound.mq").Start(ctx, "PublishSecurityEvent")
	defer span.End()

	body, err := json.Marshal(event.TOTPSecurityMessage{
		Kind:       string(ev.Kind),
		UserID:     ev.UserID,
		KeyID:      ev.KeyID,
		Counter:    ev.Counter,
		OccurredAt: ev.OccurredAt.Unix(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	cID := instrument.GetCorrelationID(ctx)
	if _, err := m.client.Publish(ctx, m.subject, messaging.OutgoingMessage{
		Body:    body,
		Headers: []messaging.Header{{Key: keyOfCorrelationID, Value: []byte(cID)}},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
