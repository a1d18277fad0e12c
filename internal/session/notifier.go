package session

import (
	"context"

	"go.uber.org/zap"
)

// FanoutNotifier delivers through a primary notifier and mirrors every view
// to secondary notifiers. Only the primary's result is returned; mirror
// failures are logged.
type FanoutNotifier struct {
	primary Notifier
	mirrors []Notifier
	logger  *zap.Logger
}

// NewFanoutNotifier wraps primary with mirrors. Nil mirrors are skipped.
func NewFanoutNotifier(primary Notifier, logger *zap.Logger, mirrors ...Notifier) *FanoutNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &FanoutNotifier{primary: primary, logger: logger}
	for _, m := range mirrors {
		if m != nil {
			f.mirrors = append(f.mirrors, m)
		}
	}
	return f
}

// Publish implements Notifier.
func (f *FanoutNotifier) Publish(ctx context.Context, target Target, v View) (MessageRef, error) {
	ref, err := f.primary.Publish(ctx, target, v)
	for _, m := range f.mirrors {
		if _, mErr := m.Publish(ctx, target, v); mErr != nil {
			f.logger.Debug("mirror publish failed", zap.String("guild_id", target.TenantID.String()), zap.Error(mErr))
		}
	}
	return ref, err
}

// Update implements Notifier. Mirrors see updates as fresh publishes since
// they keep no message history.
func (f *FanoutNotifier) Update(ctx context.Context, ref MessageRef, v View) error {
	err := f.primary.Update(ctx, ref, v)
	target := Target{TenantID: ref.TenantID, ChannelID: ref.ChannelID}
	for _, m := range f.mirrors {
		if _, mErr := m.Publish(ctx, target, v); mErr != nil {
			f.logger.Debug("mirror update failed", zap.String("guild_id", ref.TenantID.String()), zap.Error(mErr))
		}
	}
	return err
}
