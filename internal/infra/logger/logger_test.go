package logger

import (
	"testing"

	"speaker_scheduler/internal/infra/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	Init(&config.AppConfig{LogLevel: "debug", Environment: "production"})
	assert.Equal(t, logrus.DebugLevel, Log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, Log.Formatter)
	assert.True(t, Log.ReportCaller)

	Init(&config.AppConfig{LogLevel: "nonsense", Environment: "development"})
	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, Log.Formatter)
	assert.False(t, Log.ReportCaller)
}

func TestComponent(t *testing.T) {
	assert.Equal(t, "scheduler", Component("scheduler").Data["component"])
}
