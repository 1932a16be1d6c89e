package device

import (
	"context"
	"fmt"
	"net/http"

	"EffortLab/internal/domain/models"
	"EffortLab/internal/domain/repository"
	xhttp "EffortLab/pkg/http"
)

// BridgeSink posts marker codes to a trigger bridge, a small process next
// to the EEG amplifier that owns the serial port and its reset frame.
type BridgeSink struct {
	client *xhttp.Client
	url    string
}

func NewBridgeSink(client *xhttp.Client, url string) *BridgeSink {
	return &BridgeSink{client: client, url: url}
}

var _ repository.MarkerSink = (*BridgeSink)(nil)

type bridgeRequest struct {
	Code    uint8  `json:"code"`
	Marker  string `json:"marker"`
	Session string `json:"session,omitempty"`
}

func (b *BridgeSink) Deliver(ctx context.Context, e models.MarkerEvent) error {
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: http.MethodPost,
		URL:    b.url,
		Body: bridgeRequest{
			Code:    e.Marker.Code(),
			Marker:  e.Marker.String(),
			Session: e.SessionID,
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("trigger bridge: %w", err)
	}
	return nil
}

// NopSink accepts and discards every marker.
type NopSink struct{}

func (NopSink) Deliver(context.Context, models.MarkerEvent) error { return nil }
