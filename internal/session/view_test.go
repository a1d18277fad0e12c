package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00:00"},
		{-time.Second, "0:00:00"},
		{59*time.Second + 900*time.Millisecond, "0:00:59"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{5 * time.Hour, "5:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestStatusViewActiveAndEnded(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Second)

	active := StatusView(start, "123", now, false)
	assert.Equal(t, "🔴 Recording...", active.Title)
	assert.True(t, active.StopControl)
	assert.False(t, active.StopDisabled)
	require.Len(t, active.Fields, 3)
	assert.Equal(t, "<#123>", active.Fields[1].Value)
	assert.Equal(t, "0:01:30", active.Fields[2].Value)

	ended := StatusView(start, "123", now, true)
	assert.Equal(t, "Recording ended.", ended.Title)
	assert.True(t, ended.StopDisabled)
	assert.Len(t, ended.Fields, 2)
}

func TestTriggerNotes(t *testing.T) {
	assert.Empty(t, triggerNote(TriggerManual, time.Hour))
	assert.Contains(t, triggerNote(TriggerTimeout, 300*time.Minute), "300 minutes")
	assert.Contains(t, triggerNote(TriggerExternalDisconnect, time.Hour), "connection was lost")
	assert.Contains(t, triggerNote(TriggerShutdown, time.Hour), "shutting down")
}

func TestCompleteView(t *testing.T) {
	id := uuid.New()
	finished := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	v := CompleteView(id, 2*time.Hour, []string{"1", "2"}, finished, TriggerManual, time.Hour)

	assert.Equal(t, KindSuccess, v.Kind)
	assert.Equal(t, "`"+id.String()+"`", v.Fields[0].Value)
	assert.Equal(t, "2:00:00", v.Fields[1].Value)
	assert.Equal(t, "<@1>, <@2>", v.Fields[2].Value)
	assert.Equal(t, "Recording finished at 2024-03-01 11:00:00", v.Footer)
}

func TestFanoutNotifierMirrors(t *testing.T) {
	primary := &fakeNotifier{}
	mirror := &fakeNotifier{}
	broken := &fakeNotifier{publishErr: errBoom}
	f := NewFanoutNotifier(primary, zaptest.NewLogger(t), mirror, nil, broken)

	target := Target{TenantID: "g1", ChannelID: "c1"}
	ref, err := f.Publish(context.Background(), target, NotRecordingView())
	require.NoError(t, err)
	assert.Equal(t, "msg-1", ref.MessageID)

	require.NoError(t, f.Update(context.Background(), ref, AlreadyActiveView()))

	assert.Len(t, primary.all(), 2)
	assert.True(t, primary.all()[1].update)
	require.Len(t, mirror.all(), 2)
	assert.Equal(t, target, mirror.all()[1].target)
}

func TestFanoutNotifierReturnsPrimaryError(t *testing.T) {
	f := NewFanoutNotifier(&fakeNotifier{publishErr: errBoom}, nil)
	_, err := f.Publish(context.Background(), Target{TenantID: "g1"}, NotRecordingView())
	require.ErrorIs(t, err, errBoom)
}
