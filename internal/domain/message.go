package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FlexID is an identifier the platform may send either as a JSON string or
// as a JSON number. It is always held in its decimal string form.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number, got %s", string(data))
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// FileID is the identifier the platform assigns to an uploaded file.
type FileID = FlexID

// InboundEvent is the part of a webhook payload the bot acts on.
type InboundEvent struct {
	AccountID int64  `json:"account_id"`
	Body      string `json:"body"`
	RoomID    FlexID `json:"room_id" validate:"required,max=64"`
	MessageID FlexID `json:"message_id" validate:"required,max=64"`
}

// WebhookEnvelope is the raw webhook request body.
type WebhookEnvelope struct {
	WebhookSettingID FlexID        `json:"webhook_setting_id,omitempty"`
	WebhookEventType string        `json:"webhook_event_type,omitempty"`
	WebhookEventTime int64         `json:"webhook_event_time,omitempty"`
	WebhookEvent     *InboundEvent `json:"webhook_event" validate:"required"`
}

// ParseWebhook decodes a webhook body. It fails with ErrInvalidPayload when
// the body is not JSON or carries no webhook_event object.
func ParseWebhook(body []byte) (InboundEvent, error) {
	var env WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return InboundEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.StructPartial(env, "WebhookEvent"); err != nil {
		return InboundEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return *env.WebhookEvent, nil
}

// Validate checks the fields a reply needs. Filtering and trigger matching
// only look at AccountID and Body, so events that never trigger are not
// required to pass it.
func (e InboundEvent) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Sender returns the account id as used in reply markup.
func (e InboundEvent) Sender() string {
	return strconv.FormatInt(e.AccountID, 10)
}

// Matches reports whether the body is exactly the trigger phrase.
func (e InboundEvent) Matches(trigger string) bool {
	return trigger != "" && e.Body == trigger
}

// Preview returns a shortened body for logging.
func (e InboundEvent) Preview(max int) string {
	body := strings.ReplaceAll(e.Body, "\n", " ")
	r := []rune(body)
	if len(r) <= max {
		return body
	}
	return string(r[:max]) + "…"
}
