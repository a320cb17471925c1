package location

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"goodzwork-checkin/models"
)

var (
	ErrNoGeoSupport       = errors.New("geolocation not supported")
	ErrPermissionDenied   = errors.New("geolocation permission denied")
	ErrTimeout            = errors.New("geolocation timed out")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Locator produces one position fix per call.
type Locator interface {
	Locate(ctx context.Context) (models.GeoPosition, error)
}

type GeofenceChecker interface {
	CheckLocation(ctx context.Context, lat, lon float64) (*models.GeofenceResult, error)
}

// Admission is the outcome of one pass through the gate. A rejected
// admission is a business outcome, not an error.
type Admission struct {
	Position models.GeoPosition
	Result   models.GeofenceResult
}

func (a *Admission) Allowed() bool {
	return a != nil && a.Result.Allowed
}

// ============================================================
// GATE
// ============================================================

type Gate struct {
	locator Locator
	checker GeofenceChecker
	log     logrus.FieldLogger
}

func NewGate(locator Locator, checker GeofenceChecker, log logrus.FieldLogger) *Gate {
	return &Gate{locator: locator, checker: checker, log: log}
}

func (g *Gate) Admit(ctx context.Context) (*Admission, error) {
	pos, err := g.locator.Locate(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire location: %w", err)
	}

	if err := ValidateCoordinates(pos.Latitude, pos.Longitude); err != nil {
		return nil, err
	}

	g.log.Infof("📍 Position (%.6f, %.6f) ±%.0fm", pos.Latitude, pos.Longitude, pos.Accuracy)

	result, err := g.checker.CheckLocation(ctx, pos.Latitude, pos.Longitude)
	if err != nil {
		return nil, fmt.Errorf("geofence check: %w", err)
	}

	if result.Allowed {
		g.log.Infof("✅ %s", result.Message)
	} else {
		g.log.Warnf("❌ %s", result.Message)
	}

	return &Admission{Position: pos, Result: *result}, nil
}

func ValidateCoordinates(lat, lon float64) error {
	if lat == 0 && lon == 0 {
		return fmt.Errorf("%w: (0, 0)", ErrInvalidCoordinates)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: (%.6f, %.6f) out of range", ErrInvalidCoordinates, lat, lon)
	}
	return nil
}

// UserMessage is the text shown when the gate cannot admit the user for a
// reason other than distance.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoGeoSupport):
		return "Thiết bị không hỗ trợ GPS"
	case errors.Is(err, ErrPermissionDenied):
		return "Vui lòng cho phép truy cập vị trí để chấm công"
	case errors.Is(err, ErrTimeout):
		return "Hết thời gian xác định vị trí. Vui lòng thử lại"
	case errors.Is(err, ErrInvalidCoordinates):
		return "Vị trí không hợp lệ"
	default:
		return "Không thể kiểm tra vị trí"
	}
}
