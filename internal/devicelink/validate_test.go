package devicelink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/tvbridge/internal/adb"
	"github.com/HerbHall/tvbridge/internal/catalog"
	"github.com/HerbHall/tvbridge/internal/testutil"
	"github.com/HerbHall/tvbridge/pkg/models"
)

func TestValidateSuccess(t *testing.T) {
	c := commands(t)
	f := testutil.NewFakeTransport().
		On(c.Probe(catalog.ProbeDeviceModel), "X96 Max").
		On(c.Probe(catalog.ProbeDeviceBrand), "Amlogic").
		On(c.Probe(catalog.ProbeAndroidVersion), "9").
		On(c.Probe(catalog.ProbePowerState), awake).
		On(c.Probe(catalog.ProbeWifiState), "1")
	l := newLink(t, f, time.Second)

	report, err := Validate(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.50:5555", report.Serial)
	assert.Equal(t, "X96 Max", report.Info.Model)
	assert.Equal(t, models.PowerOn, report.Power)
	require.NotNil(t, report.Wifi)
	assert.True(t, report.Wifi.Enabled)
	assert.Equal(t, "tvbridge debug", report.Echo)
	assert.False(t, l.IsConnected(), "validation leaves the device disconnected")
}

func TestValidateFailureReasons(t *testing.T) {
	f := testutil.NewFakeTransport()
	f.ConnectErr = adb.ErrUnauthorized
	l := newLink(t, f, time.Second)

	_, err := Validate(context.Background(), l)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ReasonUnauthorized, verr.Reason)
	assert.Contains(t, verr.Error(), "Allow network debugging")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestValidationErrorHints(t *testing.T) {
	for _, r := range []Reason{ReasonTimeout, ReasonRefused, ReasonUnauthorized, ReasonNetwork} {
		e := &ValidationError{Serial: "tv:5555", Reason: r}
		assert.NotEqual(t, "unknown error", e.Hint(), r)
	}
	e := &ValidationError{Serial: "tv:5555", Reason: ReasonUnknown, Err: errors.New("adb not installed")}
	assert.Equal(t, "cannot connect to tv:5555: adb not installed", e.Error())
}
