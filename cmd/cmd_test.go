package cmd

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"goodzwork-checkin/internal/checkin"
	"goodzwork-checkin/internal/detector"
	"goodzwork-checkin/internal/location"
	"goodzwork-checkin/models"
)

func TestUserMessage(t *testing.T) {
	rejected := &checkin.RejectedError{Admission: &location.Admission{
		Result: models.GeofenceResult{Allowed: false, Distance: 850, Message: "Bạn đang ở quá xa công ty"},
	}}

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"rejected", fmt.Errorf("precheck: %w", rejected), "Bạn đang ở quá xa công ty"},
		{"complete", checkin.ErrDayComplete, "Bạn đã chấm công đủ hôm nay"},
		{"model", fmt.Errorf("load: %w", detector.ErrModelUnavailable), "Không thể tải mô hình nhận diện khuôn mặt"},
		{"gps timeout", fmt.Errorf("acquire location: %w", location.ErrTimeout), location.UserMessage(location.ErrTimeout)},
		{"other", fmt.Errorf("boom"), "Chấm công thất bại: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, userMessage(tt.err))
		})
	}
}

func TestReport(t *testing.T) {
	var buf bytes.Buffer
	report(&buf, &models.AttendanceResult{
		Type:       models.CheckIn,
		Message:    "Check-in thành công",
		UserName:   "Nguyễn Văn A",
		Time:       "08:05",
		Confidence: "91.2%",
	}, nil)
	assert.Contains(t, buf.String(), "✅ Check-in thành công")
	assert.Contains(t, buf.String(), "Nguyễn Văn A")
	assert.Contains(t, buf.String(), "91.2%")

	buf.Reset()
	report(&buf, nil, context.Canceled)
	assert.Empty(t, buf.String())

	buf.Reset()
	report(&buf, nil, checkin.ErrDayComplete)
	assert.Contains(t, buf.String(), "❌")
}

func TestSessionHolderReturnsNilInterface(t *testing.T) {
	var h sessionHolder
	assert.Nil(t, h.get())
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, buf.String(), "goodzwork-checkin dev")
}
