package intervention

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/experiment"
	"github.com/interact-platform/lifecycle-engine/pkg/lifecycle"
	"github.com/interact-platform/lifecycle-engine/pkg/metrics"
	"github.com/interact-platform/lifecycle-engine/pkg/notify"
)

const defaultSendTimeout = 10 * time.Second

// Dispatcher turns a selection into an actual delivery: it resolves the
// channel, writes the delivery log, attempts the send once, and records the
// outcome. Dispatch is at-most-once: a failed send is terminal for the
// attempt and a retry is a new decision cycle.
type Dispatcher struct {
	store       Store
	selector    *Selector
	notifier    notify.Notifier
	sendTimeout time.Duration

	now func() time.Time
}

// NewDispatcher wires a dispatcher from its collaborators.
func NewDispatcher(store Store, selector *Selector, notifier notify.Notifier) *Dispatcher {
	return &Dispatcher{
		store:       store,
		selector:    selector,
		notifier:    notifier,
		sendTimeout: defaultSendTimeout,
		now:         time.Now,
	}
}

// Dispatch picks the user's current eligible intervention and delivers it.
// Returns (nil, nil) when nothing is eligible.
func (d *Dispatcher) Dispatch(ctx context.Context, userID string) (*DeliveryLog, error) {
	state, err := d.store.GetLifecycleState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get lifecycle state: %w", err)
	}
	if state == nil {
		return nil, nil
	}

	sel, err := d.selector.selectForState(ctx, state)
	if err != nil {
		return nil, err
	}
	if len(sel.Interventions) == 0 {
		return nil, nil
	}
	iv := sel.Interventions[0]

	profile, err := d.store.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	channel := ResolveChannel(iv.Surface, profile)

	now := d.now()
	log := &DeliveryLog{
		ID:             uuid.NewString(),
		UserID:         userID,
		InterventionID: iv.ID,
		LifecycleState: state.CurrentState,
		Channel:        channel,
		Message:        iv.Message,
		ExperimentID:   sel.ExperimentID,
		VariantID:      sel.VariantID,
		Status:         DeliveryQueued,
		SentAt:         now,
	}
	if err := d.store.CreateDeliveryLog(ctx, log); err != nil {
		return nil, fmt.Errorf("create delivery log: %w", err)
	}

	if sendErr := d.send(ctx, channel, userID, iv.Message); sendErr != nil {
		log.Status = DeliveryFailed
		log.ErrorMessage = sendErr.Error()
		logrus.Errorf("dispatch %s to user %s over %s failed: %v", iv.ID, userID, channel, sendErr)
	} else {
		log.Status = DeliverySent
		log.DeliveredAt = d.now()
	}
	if err := d.store.UpdateDeliveryLog(ctx, log); err != nil {
		return nil, fmt.Errorf("update delivery log: %w", err)
	}
	metrics.InterventionsDispatched.WithLabelValues(string(channel), string(log.Status)).Inc()

	// The shown flags flip after the attempt regardless of the send
	// outcome: at most one attempt per decision, win or lose.
	if err := d.markShown(ctx, state, sel, iv, now); err != nil {
		return nil, err
	}

	return log, nil
}

func (d *Dispatcher) markShown(ctx context.Context, state *lifecycle.LifecycleState, sel *Selection, iv Intervention, now time.Time) error {
	if sel.IsExperiment {
		assignments, err := d.store.ListAssignments(ctx, sel.ExperimentID, state.UserID)
		if err != nil {
			return fmt.Errorf("list assignments: %w", err)
		}
		if assignment := experiment.Authoritative(assignments); assignment != nil && !assignment.InterventionShown {
			assignment.InterventionShown = true
			assignment.ShownAt = now
			if err := d.store.UpdateAssignment(ctx, assignment); err != nil {
				return fmt.Errorf("update assignment: %w", err)
			}
		}
	}

	state.MarkInterventionShown(iv.ID, iv.Type, now)
	if err := d.store.UpdateLifecycleState(ctx, state); err != nil {
		return fmt.Errorf("update lifecycle state: %w", err)
	}
	return nil
}

// send attempts one channel-specific delivery with a bounded timeout.
func (d *Dispatcher) send(ctx context.Context, channel Channel, userID, message string) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	msg := notify.Message{UserID: userID, Body: message}
	switch channel {
	case ChannelEmail:
		return d.notifier.SendEmail(ctx, msg)
	case ChannelSMS:
		return d.notifier.SendSMS(ctx, msg)
	case ChannelPush:
		return d.notifier.SendPush(ctx, msg)
	case ChannelInApp:
		return d.notifier.SendInApp(ctx, msg)
	default:
		return fmt.Errorf("unsupported channel %q", channel)
	}
}

// defaultChannelPreferences applies when the profile declares none.
var defaultChannelPreferences = []string{"email", "in_app"}

// ResolveChannel maps the intervention surface onto a concrete channel and
// then applies the user's preference order. An unusable preference (sms
// without a phone number, email when the surface is not mail-shaped) is
// skipped; no usable preference falls back to the surface-derived channel.
func ResolveChannel(surface string, profile *lifecycle.UserProfile) Channel {
	base := channelForSurface(surface)

	prefs := defaultChannelPreferences
	if profile != nil && len(profile.PreferredChannels) > 0 {
		prefs = profile.PreferredChannels
	}

	for _, pref := range prefs {
		switch Channel(pref) {
		case ChannelEmail:
			if base == ChannelEmail {
				return ChannelEmail
			}
		case ChannelSMS:
			if profile != nil && profile.PhoneNumber != "" {
				return ChannelSMS
			}
		case ChannelPush:
			return ChannelPush
		case ChannelInApp:
			return ChannelInApp
		}
	}
	return base
}

// channelForSurface maps in-product surfaces onto the in_app channel;
// email surfaces stay on mail.
func channelForSurface(surface string) Channel {
	if surface == "email" {
		return ChannelEmail
	}
	return ChannelInApp
}
